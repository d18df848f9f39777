package analise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Dispatcher entrega a análise ao fluxo externo.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload WebhookPayload) error
}

// N8NDispatcher dispara o webhook de análise do n8n.
type N8NDispatcher struct {
	webhookURL string
	secret     string
	client     *http.Client
}

// NewN8NDispatcher devolve nil quando a URL não está configurada.
func NewN8NDispatcher(webhookURL, secret string, timeout time.Duration) *N8NDispatcher {
	if strings.TrimSpace(webhookURL) == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &N8NDispatcher{
		webhookURL: strings.TrimSpace(webhookURL),
		secret:     secret,
		client:     &http.Client{Timeout: timeout},
	}
}

func (d *N8NDispatcher) Dispatch(ctx context.Context, payload WebhookPayload) error {
	if d == nil || d.webhookURL == "" {
		return ErrWebhookDisabled
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set(secretHeader, d.secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("n8n indisponível: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("n8n respondeu %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
