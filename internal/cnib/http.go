package cnib

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	httpmiddleware "github.com/cartorio-digital/backoffice/internal/http/middleware"
)

// ServiceProvider é o que o handler precisa do pipeline.
type ServiceProvider interface {
	Consult(ctx context.Context, in ConsultInput) (*ConsultResult, error)
	History(ctx context.Context, userID string, filter ListFilter) ([]Record, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*Record, error)
}

// Handler expõe a consulta e o histórico.
type Handler struct {
	service  ServiceProvider
	validate *validator.Validate
}

func NewHandler(service ServiceProvider) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// RegisterPublicRoutes registra a consulta; a sessão é resolvida pelo próprio pipeline.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/consult", h.Consult)
	r.Post("/cnib/consultar", h.Consult)
}

// RegisterRoutes registra o histórico, que exige sessão e cartório.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/cnib/consultas", h.ListConsultas)
	r.Get("/cnib/consultas/{id}", h.GetConsulta)
}

type consultPayload struct {
	Documento string `json:"documento" validate:"required"`
}

type consultSuccess struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type consultFailure struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Hint    string `json:"hint,omitempty"`
}

// Consult atende POST /consult. A autenticação é resolvida dentro do pipeline,
// depois da validação do documento.
func (h *Handler) Consult(w http.ResponseWriter, r *http.Request) {
	var payload consultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeConsultError(w, errInvalidDocument(err))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeConsultError(w, errInvalidDocument(err))
		return
	}

	result, err := h.service.Consult(r.Context(), ConsultInput{
		Documento:     payload.Documento,
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
	})
	if err != nil {
		cerr, ok := AsError(err)
		if !ok {
			cerr = newError(KindInternal, http.StatusInternalServerError, "Erro interno ao processar a consulta", err)
		}
		writeConsultError(w, cerr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(consultSuccess{Success: true, Data: result.Data})
}

// ListConsultas atende GET /cnib/consultas.
func (h *Handler) ListConsultas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Documento: q.Get("documento"),
		Status:    Status(q.Get("status")),
	}
	if filter.Status != "" && filter.Status != StatusSuccess && filter.Status != StatusError {
		writeError(w, http.StatusBadRequest, "VALIDATION", "status inválido", nil)
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	records, err := h.service.History(r.Context(), httpmiddleware.GetSubject(r.Context()), filter)
	if err != nil {
		h.writeHistoryError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultas": records})
}

// GetConsulta atende GET /cnib/consultas/{id}.
func (h *Handler) GetConsulta(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	record, err := h.service.Get(r.Context(), httpmiddleware.GetSubject(r.Context()), id)
	if err != nil {
		h.writeHistoryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"consulta": record})
}

func (h *Handler) writeHistoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoOffice):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "usuário sem cartório vinculado", nil)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "consulta não encontrada", nil)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar o histórico", nil)
	}
}

func writeConsultError(w http.ResponseWriter, e *Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(consultFailure{Error: string(e.Kind), Details: e.Details, Hint: e.Hint})
}

type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any        `json:"data"`
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Data:  nil,
		Error: &errorBody{Code: code, Message: message, Details: details},
	})
}
