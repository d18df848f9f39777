package analise

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewN8NDispatcherDisabledWithoutURL(t *testing.T) {
	if d := NewN8NDispatcher("  ", "s", time.Second); d != nil {
		t.Fatalf("expected nil dispatcher")
	}
}

func TestN8NDispatcherPostsPayload(t *testing.T) {
	var got WebhookPayload
	var secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get(secretHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := WebhookPayload{
		AnaliseID:   uuid.New(),
		CartorioID:  uuid.New(),
		Tipo:        "matricula",
		ArquivoURL:  "https://files.test/a.pdf",
		CallbackURL: "https://api.test/webhooks/n8n/analises",
	}
	d := NewN8NDispatcher(srv.URL, "segredo", time.Second)
	if err := d.Dispatch(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AnaliseID != payload.AnaliseID || got.CallbackURL != payload.CallbackURL {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if secret != "segredo" {
		t.Fatalf("expected secret header, got %q", secret)
	}
}

func TestN8NDispatcherRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow inativo", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewN8NDispatcher(srv.URL, "", time.Second).Dispatch(context.Background(), WebhookPayload{})
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "workflow inativo") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestN8NDispatcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := NewN8NDispatcher(srv.URL, "", 20*time.Millisecond).Dispatch(context.Background(), WebhookPayload{})
	if err == nil || !strings.Contains(err.Error(), "n8n indisponível") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestNilDispatcherIsDisabled(t *testing.T) {
	var d *N8NDispatcher
	if err := d.Dispatch(context.Background(), WebhookPayload{}); err != ErrWebhookDisabled {
		t.Fatalf("expected ErrWebhookDisabled, got %v", err)
	}
}
