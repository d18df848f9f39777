package protocolo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cartorio-digital/backoffice/internal/documento"
	httpmiddleware "github.com/cartorio-digital/backoffice/internal/http/middleware"
)

// ServiceProvider é o contrato usado pelo handler.
type ServiceProvider interface {
	Create(ctx context.Context, input CreateInput) (*Protocolo, error)
	List(ctx context.Context, filter Filter) ([]Protocolo, error)
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Protocolo, error)
	Update(ctx context.Context, input UpdateInput) (*Protocolo, error)
	AddAndamento(ctx context.Context, input AndamentoInput) (*Andamento, error)
	ListAndamentos(ctx context.Context, cartorioID, protocoloID uuid.UUID) ([]Andamento, error)
}

type Handler struct {
	service ServiceProvider
}

func NewHandler(service ServiceProvider) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registra /protocolos; exige sessão e cartório no contexto.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/protocolos", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Get("/{id}/andamentos", h.ListAndamentos)
		r.Post("/{id}/andamentos", h.AddAndamento)
	})
}

type createPayload struct {
	Tipo          string  `json:"tipo"`
	Assunto       string  `json:"assunto"`
	Apresentante  string  `json:"apresentante"`
	Documento     *string `json:"documento"`
	Prioridade    string  `json:"prioridade"`
	Prazo         *string `json:"prazo"`
	ResponsavelID *string `json:"responsavel_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	cartorioID, userID, ok := scope(w, r)
	if !ok {
		return
	}

	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	prazo, err := parseDate(payload.Prazo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "prazo inválido (use AAAA-MM-DD)", nil)
		return
	}
	responsavel, err := parseOptionalUUID(payload.ResponsavelID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "responsavel_id inválido", nil)
		return
	}

	p, err := h.service.Create(r.Context(), CreateInput{
		CartorioID:    cartorioID,
		Tipo:          payload.Tipo,
		Assunto:       payload.Assunto,
		Apresentante:  payload.Apresentante,
		Documento:     payload.Documento,
		Prioridade:    payload.Prioridade,
		Prazo:         prazo,
		ResponsavelID: responsavel,
		CreatedBy:     userID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"protocolo": p})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := Filter{CartorioID: cartorioID, Busca: q.Get("q")}
	if statusParam := strings.TrimSpace(q.Get("status")); statusParam != "" {
		filter.Status = strings.Split(statusParam, ",")
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar protocolos", nil)
		return
	}
	if items == nil {
		items = []Protocolo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"protocolos": items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), cartorioID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"protocolo": p})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	cartorioID, userID, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Status        *string `json:"status"`
		Prioridade    *string `json:"prioridade"`
		ResponsavelID *string `json:"responsavel_id"`
		Prazo         *string `json:"prazo"`
		Observacao    string  `json:"observacao"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	input := UpdateInput{
		CartorioID: cartorioID,
		ID:         id,
		AutorID:    userID,
		Status:     payload.Status,
		Prioridade: payload.Prioridade,
		Observacao: payload.Observacao,
	}

	if payload.ResponsavelID != nil {
		if strings.TrimSpace(*payload.ResponsavelID) == "" {
			input.ClearResponsavel = true
		} else {
			parsed, err := uuid.Parse(strings.TrimSpace(*payload.ResponsavelID))
			if err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION", "responsavel_id inválido", nil)
				return
			}
			input.ResponsavelID = &parsed
		}
	}
	prazo, err := parseDate(payload.Prazo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "prazo inválido (use AAAA-MM-DD)", nil)
		return
	}
	input.Prazo = prazo

	p, err := h.service.Update(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"protocolo": p})
}

func (h *Handler) AddAndamento(w http.ResponseWriter, r *http.Request) {
	cartorioID, userID, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Descricao string `json:"descricao"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	a, err := h.service.AddAndamento(r.Context(), AndamentoInput{
		CartorioID:  cartorioID,
		ProtocoloID: id,
		AutorID:     userID,
		Descricao:   payload.Descricao,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"andamento": a})
}

func (h *Handler) ListAndamentos(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListAndamentos(r.Context(), cartorioID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []Andamento{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"andamentos": items})
}

func scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	cartorioID := httpmiddleware.GetCartorioID(r.Context())
	if cartorioID == uuid.Nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "usuário sem cartório vinculado", nil)
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return cartorioID, userID, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidPrioridade), errors.Is(err, documento.ErrFormatoInvalido):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrClosed):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		writeError(w, http.StatusBadRequest, "VALIDATION", "campos inválidos", map[string]any{"campos": fields})
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro ao processar protocolo", nil)
	}
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
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: &errorBody{Code: code, Message: message, Details: details}})
}
