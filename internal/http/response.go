package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// envelope é o formato comum das rotas do back-office: data ou error, nunca ambos.
type envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody descreve falhas normalizadas.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Data: data})
}

// WriteError escreve envelope de erro.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	writeEnvelope(w, status, envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Int("status", status).Msg("falha ao serializar resposta")
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "NOT_FOUND", "rota não encontrada", map[string]string{"path": r.URL.Path})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "método não permitido", map[string]string{"method": r.Method})
}
