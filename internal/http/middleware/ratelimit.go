package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter mantém um token bucket por chave; chaves ociosas expiram.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	mu     sync.Mutex
	store  map[string]*limiterEntry
	maxAge time.Duration
	now    func() time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	updated time.Time
}

// NewRateLimiter cria o limitador com reqPerSec e burst por chave.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:  rate.Limit(reqPerSec),
		burst:  burst,
		store:  make(map[string]*limiterEntry),
		maxAge: 10 * time.Minute,
		now:    time.Now,
	}
}

// Allow consome um token da chave.
func (r *RateLimiter) Allow(key string) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.store[key]
	if !ok {
		for k, e := range r.store {
			if now.Sub(e.updated) > r.maxAge {
				delete(r.store, k)
			}
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.store[key] = entry
	}
	entry.updated = now
	return entry.limiter.AllowN(now, 1)
}

// LimitByKey aplica o limite à chave calculada por keyFunc; sem chave, libera.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	retryAfter := "1"
	if r.limit > 0 && float64(r.limit) < 1 {
		retryAfter = strconv.Itoa(int(1/float64(r.limit)) + 1)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		if !r.Allow(key) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "Limite de requisições excedido")
			return
		}

		next.ServeHTTP(w, req)
	})
}

// IPRateLimit usa o IP do cliente como chave.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return realIPFromRequest(r), true
		})
	}
}

// UserRateLimit usa o usuário autenticado como chave.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			subject := GetSubject(r.Context())
			return subject, subject != ""
		})
	}
}

func realIPFromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
