package cnib

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cartorio-digital/backoffice/internal/documento"
)

var (
	// ErrNotFound indica consulta inexistente no histórico do cartório.
	ErrNotFound = errors.New("consulta não encontrada")
	// ErrNoOffice indica usuário sem cartório; o histórico não é gravado.
	ErrNoOffice = errors.New("usuário sem cartório vinculado")
	// ErrPersistence envolve falhas de gravação do histórico, que nunca alteram a resposta.
	ErrPersistence = errors.New("falha ao gravar histórico da consulta")
)

// Status da consulta registrada.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Record é a linha gravada em cnib_consultas; nunca é alterada depois de criada.
type Record struct {
	ID               uuid.UUID       `json:"id"`
	Documento        string          `json:"documento"`
	TipoDocumento    documento.Tipo  `json:"tipo_documento"`
	NomeRazaoSocial  *string         `json:"nome_razao_social"`
	Hash             *string         `json:"hash,omitempty"`
	Indisponivel     bool            `json:"indisponivel"`
	QuantidadeOrdens int             `json:"quantidade_ordens"`
	Resultado        json.RawMessage `json:"resultado"`
	Status           Status          `json:"status"`
	MensagemErro     *string         `json:"mensagem_erro"`
	UsuarioID        uuid.UUID       `json:"usuario_id"`
	CartorioID       uuid.UUID       `json:"cartorio_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ListFilter restringe o histórico exibido.
type ListFilter struct {
	CartorioID uuid.UUID
	Documento  string
	Status     Status
	Limit      int
	Offset     int
}

func successRecord(doc string, tipo documento.Tipo, resp *UpstreamResponse, ex *Extraction) Record {
	return Record{
		Documento:        doc,
		TipoDocumento:    tipo,
		NomeRazaoSocial:  ex.SubjectName,
		Hash:             ex.ContentHash,
		Indisponivel:     ex.Unavailable,
		QuantidadeOrdens: ex.OrderCount,
		Resultado:        resp.Body,
		Status:           StatusSuccess,
	}
}

func failureRecord(doc string, tipo documento.Tipo, cause *Error) Record {
	raw, _ := json.Marshal(map[string]any{
		"error":           cause.Kind,
		"details":         cause.Details,
		"upstream_status": cause.UpstreamStatus,
	})
	msg := cause.Details
	return Record{
		Documento:     doc,
		TipoDocumento: tipo,
		Resultado:     raw,
		Status:        StatusError,
		MensagemErro:  &msg,
	}
}
