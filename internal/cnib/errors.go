package cnib

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifica as falhas do pipeline de consulta.
type Kind string

const (
	KindInvalidDocument     Kind = "invalid_document_format"
	KindUnauthenticated     Kind = "unauthenticated"
	KindConfiguration       Kind = "configuration_error"
	KindTokenUnavailable    Kind = "token_unavailable"
	KindUpstreamUnreachable Kind = "upstream_unreachable"
	KindUpstreamRejected    Kind = "upstream_rejected"
	KindUpstreamMalformed   Kind = "upstream_malformed_response"
	KindInternal            Kind = "internal_error"
)

// Error carrega a categoria, o status HTTP de saída e a mensagem para o usuário.
type Error struct {
	Kind           Kind
	Status         int
	Details        string
	Hint           string
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

// Recordable indica se a falha acontece depois da chamada à CNIB e deve ser registrada.
func (e *Error) Recordable() bool {
	switch e.Kind {
	case KindUpstreamUnreachable, KindUpstreamRejected, KindUpstreamMalformed:
		return true
	default:
		return false
	}
}

// AsError extrai *Error da cadeia.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(kind Kind, status int, details string, err error) *Error {
	return &Error{Kind: kind, Status: status, Details: details, Err: err}
}

func errInvalidDocument(err error) *Error {
	return newError(KindInvalidDocument, http.StatusBadRequest, "Documento deve ser um CPF (11 dígitos) ou CNPJ (14 dígitos)", err)
}

func errUnauthenticated(err error) *Error {
	return newError(KindUnauthenticated, http.StatusUnauthorized, "Sessão inválida ou expirada; faça login novamente", err)
}

func errConfiguration(status int, details string) *Error {
	return newError(KindConfiguration, status, details, nil)
}

func errTokenUnavailable(details string, err error) *Error {
	return newError(KindTokenUnavailable, http.StatusServiceUnavailable, details, err)
}

func errUnreachable(details, hint string, err error) *Error {
	e := newError(KindUpstreamUnreachable, http.StatusServiceUnavailable, details, err)
	e.Hint = hint
	return e
}

func errRejected(status int, details, hint string) *Error {
	e := newError(KindUpstreamRejected, status, details, nil)
	e.UpstreamStatus = status
	e.Hint = hint
	return e
}

func errMalformed(details string, err error) *Error {
	return newError(KindUpstreamMalformed, http.StatusBadGateway, details, err)
}
