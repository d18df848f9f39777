package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	cookieAccessToken = "sb-access-token"
	cookieAuthToken   = "supabase-auth-token"
)

// Resolver identifica o chamador por Bearer ou, na falta dele, pelos cookies de sessão.
type Resolver struct {
	verifier    Verifier
	cookieNames []string
	logger      zerolog.Logger
}

// NewResolver monta a lista de cookies a partir da URL do serviço de identidade.
func NewResolver(verifier Verifier, identityURL string, logger zerolog.Logger) *Resolver {
	names := []string{cookieAccessToken, cookieAuthToken}
	if ref := ProjectRef(identityURL); ref != "" {
		names = append(names, "sb-"+ref+"-auth-token")
	}
	return &Resolver{verifier: verifier, cookieNames: names, logger: logger}
}

// CookieNames devolve os cookies consultados, na ordem de precedência.
func (r *Resolver) CookieNames() []string {
	out := make([]string, len(r.cookieNames))
	copy(out, r.cookieNames)
	return out
}

// Resolve aplica a ordem: Bearer válido vence; senão o primeiro cookie presente é validado.
func (r *Resolver) Resolve(ctx context.Context, authorization, cookieHeader string) (*Identity, error) {
	if token := BearerToken(authorization); token != "" {
		id, err := r.verifier.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		r.logger.Debug().Err(err).Msg("auth: bearer recusado, tentando cookies")
	}

	if strings.TrimSpace(cookieHeader) == "" {
		return nil, ErrUnauthenticated
	}

	cookies := ParseCookies(cookieHeader)
	for _, name := range r.cookieNames {
		raw, ok := lookupCookie(cookies, name)
		if !ok {
			continue
		}
		token := accessTokenFromCookie(raw)
		if token == "" {
			break
		}
		id, err := r.verifier.Verify(ctx, token)
		if err != nil {
			r.logger.Debug().Err(err).Str("cookie", name).Msg("auth: cookie recusado")
			return nil, ErrUnauthenticated
		}
		return id, nil
	}

	return nil, ErrUnauthenticated
}

// BearerToken extrai o token de um header Authorization.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ParseCookies separa o header em pares nome/valor decodificados; o primeiro nome repetido vence.
func ParseCookies(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := out[name]; exists {
			continue
		}
		if decoded, err := url.QueryUnescape(strings.TrimSpace(value)); err == nil {
			value = decoded
		}
		out[name] = strings.TrimSpace(value)
	}
	return out
}

// ProjectRef devolve o primeiro rótulo do host (ex.: abcd em abcd.supabase.co).
func ProjectRef(identityURL string) string {
	u, err := url.Parse(strings.TrimSpace(identityURL))
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	return strings.ToLower(label)
}

// lookupCookie aceita também o formato fragmentado nome.0, nome.1, ...
func lookupCookie(cookies map[string]string, name string) (string, bool) {
	if v, ok := cookies[name]; ok {
		return v, true
	}
	var b strings.Builder
	for i := 0; ; i++ {
		chunk, ok := cookies[name+"."+strconv.Itoa(i)]
		if !ok {
			break
		}
		b.WriteString(chunk)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func accessTokenFromCookie(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "base64-") {
		decoded, err := decodeBase64(strings.TrimPrefix(raw, "base64-"))
		if err != nil {
			return ""
		}
		raw = strings.TrimSpace(string(decoded))
	}

	switch {
	case strings.HasPrefix(raw, "["):
		var session []any
		if err := json.Unmarshal([]byte(raw), &session); err != nil || len(session) == 0 {
			return ""
		}
		token, _ := session[0].(string)
		return strings.TrimSpace(token)
	case strings.HasPrefix(raw, "{"):
		var session struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return ""
		}
		return strings.TrimSpace(session.AccessToken)
	default:
		return raw
	}
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding}
	for _, enc := range encodings {
		if out, err := enc.DecodeString(s); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("cookie base64 inválido")
}
