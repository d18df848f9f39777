package cnib

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartorio-digital/backoffice/internal/auth"
	"github.com/cartorio-digital/backoffice/internal/cartorio"
)

type stubIdentity struct {
	id    *auth.Identity
	err   error
	calls int
}

func (s *stubIdentity) Resolve(ctx context.Context, authorization, cookieHeader string) (*auth.Identity, error) {
	s.calls++
	return s.id, s.err
}

type stubUpstream struct {
	resp  *UpstreamResponse
	err   error
	calls int
}

func (s *stubUpstream) Query(ctx context.Context, token, officeID, subjectID string) (*UpstreamResponse, error) {
	s.calls++
	return s.resp, s.err
}

type invalidatingSource struct {
	countingSource
	invalidated int
}

func (s *invalidatingSource) Invalidate(ctx context.Context) { s.invalidated++ }

type fixture struct {
	svc      *Service
	identity *stubIdentity
	tokens   *invalidatingSource
	upstream *stubUpstream
	store    *memoryStore
	officeID uuid.UUID
	userID   string
}

func newFixture(t *testing.T, withOffice bool) *fixture {
	t.Helper()
	userID := uuid.NewString()
	offices := &stubOffices{offices: map[string]cartorio.Cartorio{}}
	var officeID uuid.UUID
	if withOffice {
		offices, officeID = newOffices(userID)
	}

	f := &fixture{
		identity: &stubIdentity{id: &auth.Identity{ID: userID, Email: "escrevente@cartorio.test"}},
		tokens:   &invalidatingSource{countingSource: countingSource{token: "tok"}},
		upstream: &stubUpstream{},
		store:    &memoryStore{},
		officeID: officeID,
		userID:   userID,
	}
	f.svc = NewService(Deps{
		Identity:         f.identity,
		Tokens:           f.tokens,
		Upstream:         f.upstream,
		Recorder:         NewRecorder(f.store, offices, zerolog.Nop()),
		History:          f.store,
		Offices:          offices,
		OfficeIdentifier: officeCPF,
		Logger:           zerolog.Nop(),
	})
	return f
}

func upstreamOK(t *testing.T, raw string) *UpstreamResponse {
	return &UpstreamResponse{Status: http.StatusOK, Body: []byte(raw), Value: decode(t, raw)}
}

func TestConsultSuccessRecordsHistory(t *testing.T) {
	f := newFixture(t, true)
	f.upstream.resp = upstreamOK(t, `{"data": {"data": {"nome": "Maria", "indisponivel": true, "quantidade_ordens": 2, "dados_usuario": {"hash": "abc123xyz0"}}}}`)

	res, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "123.456.789-09", Authorization: "Bearer x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Record == nil {
		t.Fatalf("expected record to be saved")
	}
	if len(f.store.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(f.store.rows))
	}
	row := f.store.rows[0]
	if row.Documento != "12345678909" || row.Status != StatusSuccess || !row.Indisponivel || row.QuantidadeOrdens != 2 {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.Hash == nil || *row.Hash != "abc123xyz0" {
		t.Fatalf("unexpected hash %v", row.Hash)
	}
	if row.NomeRazaoSocial == nil || *row.NomeRazaoSocial != "Maria" {
		t.Fatalf("unexpected name %v", row.NomeRazaoSocial)
	}
	if string(res.Data) != string(f.upstream.resp.Body) {
		t.Fatalf("response body must be returned verbatim")
	}
}

func TestConsultUpstreamUnavailableRecordsOneError(t *testing.T) {
	f := newFixture(t, true)
	f.upstream.err = rejection(http.StatusServiceUnavailable, nil)

	_, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12345678909"})
	cerr, ok := AsError(err)
	if !ok || cerr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if len(f.store.rows) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(f.store.rows))
	}
	row := f.store.rows[0]
	if row.Status != StatusError || row.MensagemErro == nil || *row.MensagemErro == "" {
		t.Fatalf("unexpected error row %+v", row)
	}
}

func TestConsultWithoutOfficeSkipsHistory(t *testing.T) {
	f := newFixture(t, false)
	f.upstream.resp = upstreamOK(t, `{"data": {"indisponivel": false}}`)

	res, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "11222333000181"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.upstream.calls != 1 {
		t.Fatalf("expected upstream call, got %d", f.upstream.calls)
	}
	if res.Record != nil || f.store.inserts != 0 {
		t.Fatalf("expected no rows without office")
	}
	if len(res.Data) == 0 {
		t.Fatalf("expected upstream data in result")
	}
}

func TestConsultInvalidDocumentShortCircuits(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12.345"})
	cerr, ok := AsError(err)
	if !ok || cerr.Kind != KindInvalidDocument || cerr.Status != http.StatusBadRequest {
		t.Fatalf("expected invalid document, got %v", err)
	}
	if f.identity.calls != 0 || f.tokens.calls != 0 || f.upstream.calls != 0 {
		t.Fatalf("nothing should run after invalid document")
	}
}

func TestConsultUnauthenticated(t *testing.T) {
	f := newFixture(t, true)
	f.identity.id = nil
	f.identity.err = auth.ErrUnauthenticated

	_, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12345678909"})
	cerr, ok := AsError(err)
	if !ok || cerr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if f.tokens.calls != 0 {
		t.Fatalf("token must not be requested")
	}
}

func TestConsultTokenFailureIsNotRecorded(t *testing.T) {
	f := newFixture(t, true)
	f.tokens.err = errors.New("dial tcp: refused")

	_, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12345678909"})
	cerr, ok := AsError(err)
	if !ok || cerr.Kind != KindTokenUnavailable || cerr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected token_unavailable, got %v", err)
	}
	if f.upstream.calls != 0 || len(f.store.rows) != 0 {
		t.Fatalf("no upstream call or record expected")
	}
}

func TestConsultInvalidatesTokenOnAuthorizationRejection(t *testing.T) {
	f := newFixture(t, true)
	f.upstream.err = rejection(http.StatusUnauthorized, []byte(`{"message": "token expirado"}`))

	_, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12345678909"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if f.tokens.invalidated != 1 {
		t.Fatalf("expected token invalidation, got %d", f.tokens.invalidated)
	}
}

func TestConsultPersistenceFailureKeepsResult(t *testing.T) {
	f := newFixture(t, true)
	f.store.failWith = errors.New("connection reset")
	f.upstream.resp = upstreamOK(t, `{"data": {}}`)

	res, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12345678909"})
	if err != nil {
		t.Fatalf("persistence failure must not fail the consultation: %v", err)
	}
	if res.Record != nil {
		t.Fatalf("expected nil record")
	}
}

func TestHistoryScopedToOffice(t *testing.T) {
	f := newFixture(t, true)
	f.upstream.resp = upstreamOK(t, `{"data": {}}`)
	if _, err := f.svc.Consult(context.Background(), ConsultInput{Documento: "12345678909"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.store.rows = append(f.store.rows, Record{ID: uuid.New(), CartorioID: uuid.New(), Status: StatusSuccess})

	records, err := f.svc.History(context.Background(), f.userID, ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].CartorioID != f.officeID {
		t.Fatalf("expected only own office records, got %+v", records)
	}

	if _, err := f.svc.History(context.Background(), uuid.NewString(), ListFilter{}); !errors.Is(err, ErrNoOffice) {
		t.Fatalf("expected ErrNoOffice, got %v", err)
	}
}
