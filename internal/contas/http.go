package contas

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

	httpmiddleware "github.com/cartorio-digital/backoffice/internal/http/middleware"
	"github.com/cartorio-digital/backoffice/internal/storage"
)

const maxAnexoSize = 10 << 20

// ServiceProvider é o contrato usado pelo handler.
type ServiceProvider interface {
	Create(ctx context.Context, input CreateInput) (*Conta, error)
	List(ctx context.Context, filter Filter) ([]Conta, error)
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Conta, error)
	Update(ctx context.Context, input UpdateInput) (*Conta, error)
	Pay(ctx context.Context, cartorioID, id uuid.UUID, formaPagamento *string) (*Conta, error)
	Delete(ctx context.Context, cartorioID, id uuid.UUID) error
	Attach(ctx context.Context, cartorioID, contaID, userID uuid.UUID, file *storage.File) (*Anexo, error)
	RemoveAnexo(ctx context.Context, cartorioID, contaID, anexoID uuid.UUID) error
	Summary(ctx context.Context, filter Filter) (*Resumo, error)
}

type Handler struct {
	service ServiceProvider
}

func NewHandler(service ServiceProvider) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/contas", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/resumo", h.Summary)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/pagar", h.Pay)
		r.Post("/{id}/anexos", h.Attach)
		r.Delete("/{id}/anexos/{anexoID}", h.RemoveAnexo)
	})
}

type contaPayload struct {
	Fornecedor     *string  `json:"fornecedor"`
	Descricao      *string  `json:"descricao"`
	Categoria      *string  `json:"categoria"`
	Valor          *float64 `json:"valor"`
	Vencimento     *string  `json:"vencimento"`
	FormaPagamento *string  `json:"forma_pagamento"`
	Observacoes    *string  `json:"observacoes"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	cartorioID, userID, ok := scope(w, r)
	if !ok {
		return
	}

	var payload contaPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	vencimento, err := parseDate(payload.Vencimento)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "vencimento inválido (use AAAA-MM-DD)", nil)
		return
	}

	input := CreateInput{
		CartorioID:     cartorioID,
		Fornecedor:     deref(payload.Fornecedor),
		Descricao:      deref(payload.Descricao),
		Categoria:      deref(payload.Categoria),
		FormaPagamento: payload.FormaPagamento,
		Observacoes:    payload.Observacoes,
		CreatedBy:      userID,
	}
	if payload.Valor != nil {
		input.Valor = *payload.Valor
	}
	if vencimento != nil {
		input.Vencimento = *vencimento
	}

	c, err := h.service.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"conta": c})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	filter, ok := parseFilter(w, r, cartorioID)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []Conta{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"contas": items})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	filter, ok := parseFilter(w, r, cartorioID)
	if !ok {
		return
	}

	res, err := h.service.Summary(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"resumo": res})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), cartorioID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conta": c})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var payload contaPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	vencimento, err := parseDate(payload.Vencimento)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "vencimento inválido (use AAAA-MM-DD)", nil)
		return
	}

	c, err := h.service.Update(r.Context(), UpdateInput{
		CartorioID:     cartorioID,
		ID:             id,
		Fornecedor:     payload.Fornecedor,
		Descricao:      payload.Descricao,
		Categoria:      payload.Categoria,
		Valor:          payload.Valor,
		Vencimento:     vencimento,
		FormaPagamento: payload.FormaPagamento,
		Observacoes:    payload.Observacoes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conta": c})
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		FormaPagamento *string `json:"forma_pagamento"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
			return
		}
	}

	c, err := h.service.Pay(r.Context(), cartorioID, id, payload.FormaPagamento)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conta": c})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), cartorioID, id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	cartorioID, userID, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAnexoSize+1<<20)
	file, err := storage.ReadMultipartFile(r, "file", maxAnexoSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	anexo, err := h.service.Attach(r.Context(), cartorioID, id, userID, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"anexo": anexo})
}

func (h *Handler) RemoveAnexo(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	anexoID, ok := pathUUID(w, r, "anexoID")
	if !ok {
		return
	}

	if err := h.service.RemoveAnexo(r.Context(), cartorioID, id, anexoID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(w http.ResponseWriter, r *http.Request, cartorioID uuid.UUID) (Filter, bool) {
	q := r.URL.Query()
	filter := Filter{CartorioID: cartorioID, Situacao: q.Get("situacao")}

	var err error
	if filter.De, err = parseDate(optional(q.Get("de"))); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "data inicial inválida", nil)
		return filter, false
	}
	if filter.Ate, err = parseDate(optional(q.Get("ate"))); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "data final inválida", nil)
		return filter, false
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}
	return filter, true
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

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", name+" inválido", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAnexoNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrInvalidSituacao):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, "STORAGE", err.Error(), nil)
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		writeError(w, http.StatusBadRequest, "VALIDATION", "campos inválidos", map[string]any{"campos": fields})
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro ao processar conta", nil)
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
