package analise

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartorio-digital/backoffice/internal/storage"
)

type stubStore struct {
	items     map[uuid.UUID]*Analise
	createErr error
}

func newStubStore() *stubStore {
	return &stubStore{items: map[uuid.UUID]*Analise{}}
}

func (s *stubStore) Create(ctx context.Context, input CreateInput) (*Analise, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	a := &Analise{
		ID:            uuid.New(),
		CartorioID:    input.CartorioID,
		ProtocoloID:   input.ProtocoloID,
		Tipo:          input.Tipo,
		NomeArquivo:   input.NomeArquivo,
		ArquivoURL:    input.ArquivoURL,
		ObjectKey:     input.ObjectKey,
		Status:        StatusPendente,
		SolicitadoPor: input.SolicitadoPor,
		CreatedAt:     time.Now(),
	}
	s.items[a.ID] = a
	return a, nil
}

func (s *stubStore) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Analise, error) {
	a, ok := s.items[id]
	if !ok || a.CartorioID != cartorioID {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *stubStore) List(ctx context.Context, filter Filter) ([]Analise, error) {
	var out []Analise
	for _, a := range s.items {
		if a.CartorioID == filter.CartorioID && (filter.Status == "" || a.Status == filter.Status) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubStore) SetStatus(ctx context.Context, id uuid.UUID, status string, resultado []byte, erro *string) (*Analise, error) {
	a, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusPendente && a.Status != StatusEnviado {
		return nil, ErrFinished
	}
	a.Status = status
	if len(resultado) > 0 {
		a.Resultado = json.RawMessage(resultado)
	}
	a.Erro = erro
	return a, nil
}

type stubUploader struct {
	uploads []storage.UploadInput
	deleted []string
}

func (u *stubUploader) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadResult, error) {
	u.uploads = append(u.uploads, in)
	return &storage.UploadResult{Key: in.Key, URL: "https://files.test/" + in.Key, Size: int64(len(in.Body)), ContentType: in.ContentType}, nil
}

func (u *stubUploader) Delete(ctx context.Context, key string) error {
	u.deleted = append(u.deleted, key)
	return nil
}

type stubDispatcher struct {
	payloads []WebhookPayload
	err      error
	onSend   func(payload WebhookPayload)
}

func (d *stubDispatcher) Dispatch(ctx context.Context, payload WebhookPayload) error {
	d.payloads = append(d.payloads, payload)
	if d.onSend != nil {
		d.onSend(payload)
	}
	return d.err
}

const testSecret = "segredo-n8n"

func newService(store *stubStore, files storage.Uploader, dispatcher Dispatcher) *Service {
	return NewService(store, Options{
		Files:         files,
		Dispatcher:    dispatcher,
		WebhookSecret: testSecret,
		PublicBaseURL: "https://api.cartorio.test/",
		Logger:        zerolog.Nop(),
	})
}

func pdf() *storage.File {
	return &storage.File{Name: "matricula.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.4")}
}

func TestSubmitDispatchesAndMarksSent(t *testing.T) {
	store := newStubStore()
	files := &stubUploader{}
	dispatcher := &stubDispatcher{}
	office := uuid.New()

	a, err := newService(store, files, dispatcher).Submit(context.Background(), SubmitInput{
		CartorioID:    office,
		Tipo:          " Matricula ",
		SolicitadoPor: uuid.New(),
		File:          pdf(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusEnviado || a.Tipo != "matricula" {
		t.Fatalf("unexpected analise: %+v", a)
	}
	if len(files.uploads) != 1 || !strings.HasPrefix(files.uploads[0].Key, "cartorios/"+office.String()+"/analises/") {
		t.Fatalf("unexpected uploads: %+v", files.uploads)
	}
	if len(dispatcher.payloads) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(dispatcher.payloads))
	}
	p := dispatcher.payloads[0]
	if p.AnaliseID != a.ID || p.CartorioID != office || p.CallbackURL != "https://api.cartorio.test/webhooks/n8n/analises" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestSubmitReturnsResultWhenCallbackArrivesFirst(t *testing.T) {
	store := newStubStore()
	dispatcher := &stubDispatcher{}
	svc := newService(store, &stubUploader{}, dispatcher)
	dispatcher.onSend = func(p WebhookPayload) {
		if _, err := svc.Callback(context.Background(), testSecret, CallbackInput{
			AnaliseID: p.AnaliseID,
			Status:    StatusConcluido,
			Resultado: json.RawMessage(`{"ok":true}`),
		}); err != nil {
			t.Errorf("callback: %v", err)
		}
	}

	a, err := svc.Submit(context.Background(), SubmitInput{
		CartorioID:    uuid.New(),
		Tipo:          "matricula",
		SolicitadoPor: uuid.New(),
		File:          pdf(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusConcluido || string(a.Resultado) != `{"ok":true}` {
		t.Fatalf("expected completed record, got %s %s", a.Status, a.Resultado)
	}
}

func TestSubmitDispatchFailureMarksError(t *testing.T) {
	store := newStubStore()
	dispatcher := &stubDispatcher{err: errors.New("n8n respondeu 500")}

	a, err := newService(store, &stubUploader{}, dispatcher).Submit(context.Background(), SubmitInput{
		CartorioID: uuid.New(), SolicitadoPor: uuid.New(), File: pdf(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusErro || a.Erro == nil || !strings.Contains(*a.Erro, "500") {
		t.Fatalf("expected erro status, got %+v", a)
	}
	if a.Tipo != "generica" {
		t.Fatalf("expected default tipo, got %q", a.Tipo)
	}
}

func TestSubmitRequiresStorageAndWebhook(t *testing.T) {
	input := SubmitInput{CartorioID: uuid.New(), SolicitadoPor: uuid.New(), File: pdf()}

	_, err := newService(newStubStore(), storage.NoopUploader{}, &stubDispatcher{}).Submit(context.Background(), input)
	if !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("expected ErrStorageDisabled, got %v", err)
	}

	_, err = newService(newStubStore(), &stubUploader{}, nil).Submit(context.Background(), input)
	if !errors.Is(err, ErrWebhookDisabled) {
		t.Fatalf("expected ErrWebhookDisabled, got %v", err)
	}
}

func TestSubmitRemovesObjectWhenInsertFails(t *testing.T) {
	store := newStubStore()
	store.createErr = errors.New("db down")
	files := &stubUploader{}
	dispatcher := &stubDispatcher{}

	_, err := newService(store, files, dispatcher).Submit(context.Background(), SubmitInput{
		CartorioID: uuid.New(), SolicitadoPor: uuid.New(), File: pdf(),
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(files.deleted) != 1 || files.deleted[0] != files.uploads[0].Key {
		t.Fatalf("expected orphan cleanup, got %+v", files.deleted)
	}
	if len(dispatcher.payloads) != 0 {
		t.Fatalf("dispatch must not happen without a record")
	}
}

func TestCallbackRequiresSecret(t *testing.T) {
	svc := newService(newStubStore(), &stubUploader{}, &stubDispatcher{})
	for _, secret := range []string{"", "errado", testSecret + "x"} {
		_, err := svc.Callback(context.Background(), secret, CallbackInput{AnaliseID: uuid.New(), Status: StatusConcluido})
		if !errors.Is(err, ErrInvalidSecret) {
			t.Fatalf("secret %q: expected ErrInvalidSecret, got %v", secret, err)
		}
	}

	empty := NewService(newStubStore(), Options{Logger: zerolog.Nop()})
	if empty.VerifySecret("") {
		t.Fatalf("empty configured secret must reject everything")
	}
}

func TestCallbackCompletesAndRejectsReplay(t *testing.T) {
	store := newStubStore()
	svc := newService(store, &stubUploader{}, &stubDispatcher{})
	a, err := svc.Submit(context.Background(), SubmitInput{CartorioID: uuid.New(), SolicitadoPor: uuid.New(), File: pdf()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done, err := svc.Callback(context.Background(), testSecret, CallbackInput{
		AnaliseID: a.ID,
		Status:    "CONCLUIDO",
		Resultado: json.RawMessage(`{"onus":0}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != StatusConcluido || string(done.Resultado) != `{"onus":0}` {
		t.Fatalf("unexpected analise: %+v", done)
	}

	_, err = svc.Callback(context.Background(), testSecret, CallbackInput{AnaliseID: a.ID, Status: StatusErro})
	if !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
}

func TestCallbackErrorDefaultsMessage(t *testing.T) {
	store := newStubStore()
	svc := newService(store, &stubUploader{}, &stubDispatcher{})
	a, _ := svc.Submit(context.Background(), SubmitInput{CartorioID: uuid.New(), SolicitadoPor: uuid.New(), File: pdf()})

	failed, err := svc.Callback(context.Background(), testSecret, CallbackInput{AnaliseID: a.ID, Status: StatusErro})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.Erro == nil || *failed.Erro == "" {
		t.Fatalf("expected default error message")
	}
}

func TestCallbackValidatesStatus(t *testing.T) {
	svc := newService(newStubStore(), &stubUploader{}, &stubDispatcher{})
	_, err := svc.Callback(context.Background(), testSecret, CallbackInput{AnaliseID: uuid.New(), Status: "enviado"})
	if err == nil || errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
