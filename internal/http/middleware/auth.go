package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cartorio-digital/backoffice/internal/auth"
)

type contextKey string

const (
	ContextKeySubject  contextKey = "subject"
	ContextKeyEmail    contextKey = "email"
	ContextKeyCartorio contextKey = "cartorio"
)

// IdentityResolver resolve o usuário a partir do header Authorization ou dos cookies de sessão.
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization, cookieHeader string) (*auth.Identity, error)
}

// Auth resolve a sessão do serviço de identidade e injeta o usuário no contexto.
func Auth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r.Context(), r.Header.Get("Authorization"), r.Header.Get("Cookie"))
			if err != nil || identity == nil || identity.ID == "" {
				writeError(w, http.StatusUnauthorized, "AUTH", "sessão inválida ou expirada")
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, ContextKeySubject, identity.ID)
			ctx = context.WithValue(ctx, ContextKeyEmail, identity.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject recupera o id do usuário autenticado.
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// GetEmail recupera o e-mail do usuário autenticado.
func GetEmail(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyEmail).(string)
	return val
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
