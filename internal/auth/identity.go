package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthenticated indica ausência de credencial válida.
	ErrUnauthenticated = errors.New("usuário não autenticado")
	// ErrInvalidToken indica que o serviço de identidade recusou o token.
	ErrInvalidToken = errors.New("token inválido")
)

// Identity representa o chamador autenticado de uma requisição.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"-"`
}

// Verifier valida um access token junto ao serviço de identidade.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type contextKey struct{}

// WithIdentity injeta a identidade no contexto.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext recupera a identidade injetada pelo middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}
