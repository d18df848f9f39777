package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteVerifier consulta GET /auth/v1/user do Supabase para validar o token.
type RemoteVerifier struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewRemoteVerifier cria verificador remoto; client nil usa timeout padrão.
func NewRemoteVerifier(baseURL, anonKey string, client *http.Client) *RemoteVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  client,
	}
}

// Verify delega a validação ao serviço de identidade.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identidade: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("identidade: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("identidade: resposta inválida: %w", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{ID: user.ID, Email: user.Email, AccessToken: token}, nil
}
