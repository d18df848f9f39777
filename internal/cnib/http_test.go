package cnib

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/cartorio-digital/backoffice/internal/http/middleware"
)

type stubProvider struct {
	result  *ConsultResult
	err     error
	input   ConsultInput
	records []Record
	histErr error
	record  *Record
}

func (s *stubProvider) Consult(ctx context.Context, in ConsultInput) (*ConsultResult, error) {
	s.input = in
	return s.result, s.err
}

func (s *stubProvider) History(ctx context.Context, userID string, filter ListFilter) ([]Record, error) {
	return s.records, s.histErr
}

func (s *stubProvider) Get(ctx context.Context, userID string, id uuid.UUID) (*Record, error) {
	if s.record == nil {
		return nil, ErrNotFound
	}
	return s.record, nil
}

func newRouter(p *stubProvider) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(p)
	h.RegisterPublicRoutes(r)
	h.RegisterRoutes(r)
	return r
}

func TestHandlerConsultSuccess(t *testing.T) {
	p := &stubProvider{result: &ConsultResult{Data: json.RawMessage(`{"data":{"indisponivel":true}}`)}}

	req := httptest.NewRequest(http.MethodPost, "/consult", strings.NewReader(`{"documento":"123.456.789-09"}`))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Cookie", "sb-access-token=xyz")
	rec := httptest.NewRecorder()
	newRouter(p).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data["data"] == nil {
		t.Fatalf("unexpected body %+v", body)
	}
	if p.input.Authorization != "Bearer abc" || p.input.Cookie != "sb-access-token=xyz" || p.input.Documento != "123.456.789-09" {
		t.Fatalf("credentials not forwarded: %+v", p.input)
	}
}

func TestHandlerConsultErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		kind   Kind
		hint   bool
	}{
		{"corpo inválido", `{`, nil, http.StatusBadRequest, KindInvalidDocument, false},
		{"documento ausente", `{}`, nil, http.StatusBadRequest, KindInvalidDocument, false},
		{"rejeitado", `{"documento":"12345678909"}`, rejection(http.StatusForbidden, []byte(`{"message":"sem permissão"}`)), http.StatusForbidden, KindUpstreamRejected, true},
		{"indisponível", `{"documento":"12345678909"}`, errUnreachable("Conexão recusada pela CNIB", "verifique", nil), http.StatusServiceUnavailable, KindUpstreamUnreachable, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &stubProvider{err: tc.err}
			rec := httptest.NewRecorder()
			newRouter(p).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cnib/consultar", strings.NewReader(tc.body)))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body consultFailure
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != string(tc.kind) || body.Details == "" {
				t.Fatalf("unexpected body %+v", body)
			}
			if (body.Hint != "") != tc.hint {
				t.Fatalf("unexpected hint %q", body.Hint)
			}
		})
	}
}

func TestHandlerHistory(t *testing.T) {
	p := &stubProvider{records: []Record{{ID: uuid.New(), Documento: "12345678909", Status: StatusSuccess}}}
	req := httptest.NewRequest(http.MethodGet, "/cnib/consultas?limit=10&status=success", nil)
	req = req.WithContext(context.WithValue(req.Context(), httpmiddleware.ContextKeySubject, uuid.NewString()))
	rec := httptest.NewRecorder()
	newRouter(p).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "12345678909") {
		t.Fatalf("expected record in body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newRouter(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cnib/consultas?status=talvez", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", rec.Code)
	}

	p.histErr = ErrNoOffice
	rec = httptest.NewRecorder()
	newRouter(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cnib/consultas", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without office, got %d", rec.Code)
	}
}

func TestHandlerGetConsulta(t *testing.T) {
	p := &stubProvider{}
	rec := httptest.NewRecorder()
	newRouter(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cnib/consultas/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newRouter(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cnib/consultas/nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
