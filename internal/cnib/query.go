package cnib

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cartorio-digital/backoffice/internal/documento"
)

const authorizationHint = "Verifique se o CPF configurado em CNIB_CPF_USUARIO está cadastrado e habilitado na CNIB para este cartório"

var authorizationMarkers = []string{
	"não autorizado", "nao autorizado",
	"não cadastrado", "nao cadastrado",
	"não habilitado", "nao habilitado",
	"sem permissão", "sem permissao",
	"unauthorized", "forbidden",
}

// UpstreamResponse guarda o corpo original e sua versão decodificada.
type UpstreamResponse struct {
	Status int
	Body   json.RawMessage
	Value  any
}

type queryRequest struct {
	OfficeIdentifier  string `json:"office_identifier"`
	SubjectIdentifier string `json:"subject_identifier"`
}

// QueryExecutor envia a consulta de indisponibilidade à CNIB.
type QueryExecutor struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewQueryExecutor cria o executor; client nil usa http.Client padrão.
func NewQueryExecutor(url string, timeout time.Duration, client *http.Client) *QueryExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &QueryExecutor{url: strings.TrimSpace(url), client: client, timeout: timeout}
}

// CheckOfficeIdentifier valida o CPF do cartório antes de qualquer chamada de rede.
func CheckOfficeIdentifier(officeID string) error {
	if strings.TrimSpace(officeID) == "" {
		return errConfiguration(http.StatusInternalServerError, "CNIB_CPF_USUARIO não configurado")
	}
	if !documento.IsCPF(officeID) {
		return errConfiguration(http.StatusBadRequest, "CNIB_CPF_USUARIO deve conter exatamente 11 dígitos")
	}
	return nil
}

// Query consulta subjectID em nome do cartório identificado por officeID.
func (q *QueryExecutor) Query(ctx context.Context, token, officeID, subjectID string) (*UpstreamResponse, error) {
	if err := CheckOfficeIdentifier(officeID); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(queryRequest{OfficeIdentifier: officeID, SubjectIdentifier: subjectID})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errConfiguration(http.StatusInternalServerError, "CNIB_CONSULTA_URL inválida")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, q.classifyNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, q.classifyNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rejection(resp.StatusCode, body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errMalformed("CNIB respondeu sem conteúdo", nil)
	}

	var value any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, errMalformed("Resposta da CNIB não é JSON válido", err)
	}

	return &UpstreamResponse{Status: resp.StatusCode, Body: json.RawMessage(trimmed), Value: value}, nil
}

func (q *QueryExecutor) classifyNetworkError(err error) *Error {
	var (
		dnsErr    *net.DNSError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		certErr   x509.CertificateInvalidError
		verifyErr *tls.CertificateVerificationError
		recordErr tls.RecordHeaderError
	)

	switch {
	case isTimeout(err):
		return errUnreachable(
			fmt.Sprintf("Tempo esgotado (%s) aguardando resposta da CNIB", q.timeout),
			"A CNIB pode estar lenta ou indisponível; tente novamente em alguns minutos", err)
	case errors.As(err, &dnsErr):
		return errUnreachable("Não foi possível resolver o endereço da CNIB",
			"Verifique CNIB_CONSULTA_URL e a resolução DNS do servidor", err)
	case errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &certErr),
		errors.As(err, &verifyErr), errors.As(err, &recordErr):
		return errUnreachable("Falha na negociação TLS com a CNIB",
			"Verifique a cadeia de certificados confiáveis do servidor e se a URL usa https corretamente", err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return errUnreachable("Conexão recusada pela CNIB",
			"Verifique se CNIB_CONSULTA_URL aponta para o host e porta corretos", err)
	default:
		return errUnreachable("Não foi possível conectar à CNIB",
			"Verifique a conectividade de rede do servidor", err)
	}
}

func rejection(status int, body []byte) *Error {
	reason := rejectionReason(body)
	details := reason
	if details == "" {
		details = fmt.Sprintf("CNIB respondeu com status %d", status)
	}

	hint := ""
	lower := strings.ToLower(reason)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		hint = authorizationHint
	}
	for _, marker := range authorizationMarkers {
		if strings.Contains(lower, marker) {
			hint = authorizationHint
			break
		}
	}

	out := status
	if out < 400 {
		out = http.StatusBadGateway
	}
	e := errRejected(out, details, hint)
	e.UpstreamStatus = status
	return e
}

// rejectionReason prefere notifications[0].reason, onde a CNIB coloca a causa útil.
func rejectionReason(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			return snippet(body)
		}
		return ""
	}

	if list, ok := payload["notifications"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			if reason, ok := first["reason"].(string); ok && strings.TrimSpace(reason) != "" {
				return strings.TrimSpace(reason)
			}
		}
	}

	for _, key := range []string{"message", "mensagem", "error", "detail"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
