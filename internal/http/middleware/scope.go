package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cartorio-digital/backoffice/internal/cartorio"
)

// CartorioResolver devolve o cartório ao qual o usuário pertence.
type CartorioResolver interface {
	ResolveForUser(ctx context.Context, userID string) (*cartorio.Cartorio, error)
}

// Scope exige cartório vinculado ao usuário e o injeta no contexto.
// X-Cartorio, quando enviado, precisa coincidir com o vínculo do usuário.
func Scope(resolver CartorioResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := GetSubject(r.Context())
			if subject == "" {
				writeError(w, http.StatusUnauthorized, "AUTH", "sessão inválida ou expirada")
				return
			}

			office, err := resolver.ResolveForUser(r.Context(), subject)
			if err != nil {
				if errors.Is(err, cartorio.ErrNotFound) {
					writeError(w, http.StatusForbidden, "FORBIDDEN", "usuário sem cartório vinculado")
					return
				}
				writeError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível resolver o cartório")
				return
			}

			if requested := strings.TrimSpace(r.Header.Get("X-Cartorio")); requested != "" {
				uid, err := uuid.Parse(requested)
				if err != nil {
					writeError(w, http.StatusBadRequest, "VALIDATION", "Cartório inválido")
					return
				}
				if uid != office.ID {
					log.Warn().Str("usuario_id", subject).Str("email", GetEmail(r.Context())).
						Str("cartorio_id", office.ID.String()).Str("cartorio_solicitado", requested).
						Msg("acesso negado a outro cartório")
					writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso restrito ao cartório do usuário")
					return
				}
			}

			ctx := SetCartorio(r.Context(), office)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetCartorio injeta o cartório ativo no contexto.
func SetCartorio(ctx context.Context, office *cartorio.Cartorio) context.Context {
	return context.WithValue(ctx, ContextKeyCartorio, office)
}

// GetCartorio retorna o cartório ativo do contexto.
func GetCartorio(ctx context.Context) (*cartorio.Cartorio, bool) {
	val, ok := ctx.Value(ContextKeyCartorio).(*cartorio.Cartorio)
	return val, ok && val != nil
}

// GetCartorioID retorna o id do cartório ativo ou uuid.Nil.
func GetCartorioID(ctx context.Context) uuid.UUID {
	if office, ok := GetCartorio(ctx); ok {
		return office.ID
	}
	return uuid.Nil
}
