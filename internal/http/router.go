package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/cartorio-digital/backoffice/internal/analise"
	"github.com/cartorio-digital/backoffice/internal/cnib"
	"github.com/cartorio-digital/backoffice/internal/config"
	"github.com/cartorio-digital/backoffice/internal/contas"
	httpmiddleware "github.com/cartorio-digital/backoffice/internal/http/middleware"
	"github.com/cartorio-digital/backoffice/internal/protocolo"
)

// Pinger é satisfeito por *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger é satisfeito por *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Dependencies reúne tudo o que o roteador monta; criadas uma vez em main.
type Dependencies struct {
	Config     *config.Config
	DB         Pinger
	Redis      RedisPinger
	Identity   httpmiddleware.IdentityResolver
	Cartorios  httpmiddleware.CartorioResolver
	CNIB       cnib.ServiceProvider
	Protocolos protocolo.ServiceProvider
	Contas     contas.ServiceProvider
	Analises   analise.ServiceProvider
}

type Handler struct {
	db    Pinger
	redis RedisPinger
}

// NewRouter devolve roteador configurado.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	h := &Handler{db: deps.DB, redis: deps.Redis}

	publicLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst)
	userLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst)

	cnibHandler := cnib.NewHandler(deps.CNIB)
	analiseHandler := analise.NewHandler(deps.Analises)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Tracing)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(publicLimiter))

		cnibHandler.RegisterPublicRoutes(public)
		analiseHandler.RegisterWebhookRoutes(public)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(deps.Identity))
		private.Use(httpmiddleware.Scope(deps.Cartorios))
		private.Use(httpmiddleware.UserRateLimit(userLimiter))

		cnibHandler.RegisterRoutes(private)
		protocolo.NewHandler(deps.Protocolos).RegisterRoutes(private)
		contas.NewHandler(deps.Contas).RegisterRoutes(private)
		analiseHandler.RegisterRoutes(private)
	})

	return r
}

// Health responde sem tocar dependências.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e, se configurado, Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var dbErr, redisErr error
	if h.db != nil {
		dbErr = h.db.Ping(ctx)
	}
	if h.redis != nil {
		redisErr = h.redis.Ping(ctx).Err()
	}

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
