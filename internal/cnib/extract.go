package cnib

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Níveis de aninhamento em que a CNIB já devolveu os dados da consulta.
const (
	LevelDataData = "result.data.data"
	LevelData     = "result.data"
	LevelRoot     = "result"
)

var (
	hashPattern = regexp.MustCompile(`(?i)^[a-z0-9]{8,20}$`)
	uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	subjectNameFields  = []string{"nome", "nome_razao_social", "razao_social", "nomeRazaoSocial"}
	requesterDataKeys  = []string{"dados_usuario", "dadosUsuario"}
	orderCountFields   = []string{"quantidade_ordens", "quantidadeOrdens"}
	unavailableField   = "indisponivel"
	identifierReqField = "identifierRequest"
)

// Outcome descreve o resultado de uma decisão de extração.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeRejected Outcome = "rejected"
	OutcomeDefault  Outcome = "default"
)

// Decision registra de onde veio (ou por que foi recusado) cada valor extraído.
type Decision struct {
	Field   string  `json:"field"`
	Path    string  `json:"path,omitempty"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Extraction reúne os campos de interesse da resposta da CNIB.
type Extraction struct {
	PayloadLevel string
	SubjectName  *string
	ContentHash  *string
	Unavailable  bool
	OrderCount   int
	Trace        []Decision
}

// Source devolve o caminho que produziu field, ou "" se o valor é default.
func (ex *Extraction) Source(field string) string {
	for _, d := range ex.Trace {
		if d.Field == field && d.Outcome == OutcomeFound {
			return d.Path
		}
	}
	return ""
}

// ValidHash aceita tokens alfanuméricos de 8 a 20 caracteres que não sejam UUID.
func ValidHash(s string) bool {
	return hashPattern.MatchString(s) && !uuidPattern.MatchString(s)
}

type level struct {
	name string
	obj  map[string]any
}

// Extract localiza os campos percorrendo os níveis em ordem fixa.
func Extract(result any) *Extraction {
	root := asObject(result)
	data := asObject(root["data"])
	dataData := asObject(data["data"])

	ex := &Extraction{}

	payload := level{name: LevelRoot, obj: root}
	switch {
	case dataData != nil:
		payload = level{name: LevelDataData, obj: dataData}
	case data != nil:
		payload = level{name: LevelData, obj: data}
	}
	ex.PayloadLevel = payload.name

	dataLevel := level{name: LevelData, obj: data}
	rootLevel := level{name: LevelRoot, obj: root}

	ex.extractSubjectName([]level{payload, dataLevel, rootLevel})
	ex.extractContentHash(payload, dataLevel, rootLevel)
	ex.extractUnavailable(payload)
	ex.extractOrderCount(payload)

	return ex
}

func (ex *Extraction) extractSubjectName(levels []level) {
	for _, lvl := range levels {
		if lvl.obj == nil {
			continue
		}
		for _, field := range subjectNameFields {
			if s := asString(lvl.obj[field]); s != "" {
				ex.SubjectName = &s
				ex.found("subject_name", lvl.name+"."+field)
				return
			}
		}
	}
	ex.Trace = append(ex.Trace, Decision{Field: "subject_name", Outcome: OutcomeDefault, Reason: "nenhum campo de nome encontrado"})
}

func (ex *Extraction) extractContentHash(payload, data, root level) {
	for _, lvl := range []level{payload, data, root} {
		if lvl.obj == nil {
			continue
		}
		for _, key := range requesterDataKeys {
			requester := asObject(lvl.obj[key])
			s := asString(requester["hash"])
			if s == "" {
				continue
			}
			path := lvl.name + "." + key + ".hash"
			if !ValidHash(s) {
				ex.Trace = append(ex.Trace, Decision{Field: "content_hash", Path: path, Outcome: OutcomeRejected, Reason: "hash do solicitante fora do padrão"})
				continue
			}
			ex.ContentHash = &s
			ex.found("content_hash", path)
			return
		}
	}

	for _, lvl := range []level{data, root} {
		if ex.tryHashCandidate(lvl, identifierReqField) {
			return
		}
	}

	for _, lvl := range []level{payload, data, root} {
		if ex.tryHashCandidate(lvl, "hash") {
			return
		}
	}

	ex.Trace = append(ex.Trace, Decision{Field: "content_hash", Outcome: OutcomeDefault, Reason: "nenhum hash válido encontrado"})
}

func (ex *Extraction) tryHashCandidate(lvl level, field string) bool {
	if lvl.obj == nil {
		return false
	}
	s := asString(lvl.obj[field])
	if s == "" {
		return false
	}
	path := lvl.name + "." + field
	switch {
	case uuidPattern.MatchString(s):
		ex.Trace = append(ex.Trace, Decision{Field: "content_hash", Path: path, Outcome: OutcomeRejected, Reason: "valor é UUID"})
		return false
	case !hashPattern.MatchString(s):
		ex.Trace = append(ex.Trace, Decision{Field: "content_hash", Path: path, Outcome: OutcomeRejected, Reason: "fora do padrão alfanumérico 8-20"})
		return false
	}
	ex.ContentHash = &s
	ex.found("content_hash", path)
	return true
}

func (ex *Extraction) extractUnavailable(payload level) {
	if v, ok := payload.obj[unavailableField]; ok {
		if b, ok := asBool(v); ok {
			ex.Unavailable = b
			ex.found("unavailable", payload.name+"."+unavailableField)
			return
		}
	}
	ex.Trace = append(ex.Trace, Decision{Field: "unavailable", Outcome: OutcomeDefault})
}

func (ex *Extraction) extractOrderCount(payload level) {
	for _, field := range orderCountFields {
		if n, ok := asInt(payload.obj[field]); ok {
			ex.OrderCount = n
			ex.found("order_count", payload.name+"."+field)
			return
		}
	}
	ex.Trace = append(ex.Trace, Decision{Field: "order_count", Outcome: OutcomeDefault})
}

func (ex *Extraction) found(field, path string) {
	ex.Trace = append(ex.Trace, Decision{Field: field, Path: path, Outcome: OutcomeFound})
}

func asObject(v any) map[string]any {
	obj, _ := v.(map[string]any)
	return obj
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "sim", "s", "1":
			return true, true
		case "false", "nao", "não", "n", "0":
			return false, true
		}
	case json.Number:
		f, err := t.Float64()
		if err == nil {
			return f != 0, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return int(math.Round(f)), true
		}
	case float64:
		return int(math.Round(t)), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	case []any:
		return len(t), true
	}
	return 0, false
}
