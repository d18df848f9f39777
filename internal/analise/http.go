package analise

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	httpmiddleware "github.com/cartorio-digital/backoffice/internal/http/middleware"
	"github.com/cartorio-digital/backoffice/internal/storage"
)

const maxArquivoSize = 20 << 20

// ServiceProvider expõe o que o handler precisa do serviço.
type ServiceProvider interface {
	Submit(ctx context.Context, input SubmitInput) (*Analise, error)
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Analise, error)
	List(ctx context.Context, filter Filter) ([]Analise, error)
	Callback(ctx context.Context, secret string, input CallbackInput) (*Analise, error)
}

type Handler struct {
	service ServiceProvider
}

func NewHandler(service ServiceProvider) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes monta as rotas autenticadas do back-office.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analises", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Submit)
		r.Get("/{id}", h.Get)
	})
}

// RegisterWebhookRoutes monta o retorno do n8n, autenticado por segredo compartilhado.
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post(callbackPath, h.Callback)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	cartorioID, userID, ok := scope(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxArquivoSize+1<<20)
	file, err := storage.ReadMultipartFile(r, "file", maxArquivoSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	input := SubmitInput{
		CartorioID:    cartorioID,
		Tipo:          r.FormValue("tipo"),
		SolicitadoPor: userID,
		File:          file,
	}
	if raw := strings.TrimSpace(r.FormValue("protocolo_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "protocolo_id inválido", nil)
			return
		}
		input.ProtocoloID = &id
	}

	a, err := h.service.Submit(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if a.Status == StatusErro {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"analise": a})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := Filter{CartorioID: cartorioID, Status: q.Get("status")}
	if raw := strings.TrimSpace(q.Get("protocolo_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "protocolo_id inválido", nil)
			return
		}
		filter.ProtocoloID = &id
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []Analise{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analises": items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartorioID, _, ok := scope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	a, err := h.service.Get(r.Context(), cartorioID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analise": a})
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	var input CallbackInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	a, err := h.service.Callback(r.Context(), r.Header.Get(secretHeader), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analise_id": a.ID, "status": a.Status})
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

func writeServiceError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrProtocoloNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrFinished):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrInvalidSecret):
		writeError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, ErrStorageDisabled), errors.Is(err, ErrWebhookDisabled):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, storage.ErrFileMissing):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		writeError(w, http.StatusBadRequest, "VALIDATION", "campos inválidos", map[string]any{"campos": fields})
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro ao processar análise", nil)
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
