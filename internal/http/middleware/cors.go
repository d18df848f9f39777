package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowHeaders  = "Authorization, Content-Type, X-Cartorio, X-Requested-With"
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsExposeHeaders = "Retry-After, X-Request-Id"
	corsMaxAge        = "600"
)

// originPolicy interpreta ALLOW_ORIGINS: origens exatas ou curingas de subdomínio
// ("*.cartorio.com.br" ou "https://*.cartorio.com.br", este restrito ao esquema).
type originPolicy struct {
	exact     map[string]struct{}
	wildcards []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string
	suffix string
}

func newOriginPolicy(entries []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		e := strings.ToLower(strings.TrimRight(strings.TrimSpace(entry), "/"))
		if e == "" {
			continue
		}
		scheme := ""
		host := e
		if i := strings.Index(e, "://"); i > 0 {
			scheme, host = e[:i], e[i+3:]
		}
		if strings.HasPrefix(host, "*.") {
			p.wildcards = append(p.wildcards, wildcardOrigin{scheme: scheme, suffix: host[1:]})
			continue
		}
		p.exact[e] = struct{}{}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.exact[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, w := range p.wildcards {
		if w.scheme != "" && w.scheme != strings.ToLower(u.Scheme) {
			continue
		}
		// exige subdomínio: o domínio raiz não casa com o curinga
		if strings.HasSuffix(host, w.suffix) && host != strings.TrimPrefix(w.suffix, ".") {
			return true
		}
	}
	return false
}

// CORS aplica a política de origens do painel; preflight responde 204 sem chegar às rotas.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := policy.allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h := w.Header()
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
