package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cartorio-digital/backoffice/internal/analise"
	"github.com/cartorio-digital/backoffice/internal/auth"
	"github.com/cartorio-digital/backoffice/internal/cartorio"
	"github.com/cartorio-digital/backoffice/internal/cnib"
	"github.com/cartorio-digital/backoffice/internal/config"
	"github.com/cartorio-digital/backoffice/internal/contas"
	"github.com/cartorio-digital/backoffice/internal/db"
	internalhttp "github.com/cartorio-digital/backoffice/internal/http"
	"github.com/cartorio-digital/backoffice/internal/observability"
	"github.com/cartorio-digital/backoffice/internal/protocolo"
	"github.com/cartorio-digital/backoffice/internal/storage"
)

const cnibTokenCacheKey = "cnib:token"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	tracer, err := observability.InitTracer(ctx, cfg.Tracing, log.With().Str("component", "tracing").Logger())
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("falha ao encerrar tracing")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis parse: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
	}

	uploader, err := newUploader(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var verifier auth.Verifier
	if cfg.Identity.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.Identity.JWTSecret)
	} else {
		verifier = auth.NewRemoteVerifier(cfg.Identity.URL, cfg.Identity.AnonKey, nil)
	}
	identity := auth.NewResolver(verifier, cfg.Identity.URL, log.With().Str("component", "auth").Logger())

	cartorioService := cartorio.NewService(cartorio.NewRepository(pool))

	cnibLogger := log.With().Str("component", "cnib").Logger()
	cnibRepo := cnib.NewRepository(pool)
	var tokens cnib.TokenSource = cnib.NewTokenAcquirer(cfg.CNIB.TokenURL, cfg.CNIB.TokenTimeout, nil)
	if cfg.CNIB.TokenCacheTTL > 0 && redisClient != nil {
		tokens = cnib.NewCachedTokenSource(tokens, cnib.NewRedisTokenCache(redisClient), cnibTokenCacheKey, cfg.CNIB.TokenCacheTTL, cnibLogger)
		cnibLogger.Info().Dur("ttl", cfg.CNIB.TokenCacheTTL).Msg("cache de token CNIB habilitado")
	}
	cnibService := cnib.NewService(cnib.Deps{
		Identity:         identity,
		Tokens:           tokens,
		Upstream:         cnib.NewQueryExecutor(cfg.CNIB.ConsultaURL, cfg.CNIB.ConsultTimeout, nil),
		Recorder:         cnib.NewRecorder(cnibRepo, cartorioService, cnibLogger),
		History:          cnibRepo,
		Offices:          cartorioService,
		OfficeIdentifier: cfg.CNIB.CPFUsuario,
		Logger:           cnibLogger,
	})
	if err := cnib.CheckOfficeIdentifier(cfg.CNIB.CPFUsuario); err != nil {
		cnibLogger.Warn().Msg("CNIB_CPF_USUARIO ausente ou inválido; consultas retornarão erro de configuração")
	}

	analiseOpts := analise.Options{
		Files:         uploader,
		WebhookSecret: cfg.N8N.WebhookSecret,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        log.With().Str("component", "analise").Logger(),
	}
	if dispatcher := analise.NewN8NDispatcher(cfg.N8N.AnaliseWebhookURL, cfg.N8N.WebhookSecret, cfg.N8N.Timeout); dispatcher != nil {
		analiseOpts.Dispatcher = dispatcher
	}

	deps := internalhttp.Dependencies{
		Config:     cfg,
		DB:         pool,
		Identity:   identity,
		Cartorios:  cartorioService,
		CNIB:       cnibService,
		Protocolos: protocolo.NewService(protocolo.NewRepository(pool)),
		Contas:     contas.NewService(contas.NewRepository(pool), uploader, log.With().Str("component", "contas").Logger()),
		Analises:   analise.NewService(analise.NewRepository(pool), analiseOpts),
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           internalhttp.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newUploader(cfg config.StorageConfig) (storage.Uploader, error) {
	switch cfg.Provider {
	case "", "noop":
		log.Warn().Msg("storage desabilitado; anexos e análises ficam indisponíveis")
		return storage.NoopUploader{}, nil
	case "s3", "r2", "supabase":
		return storage.NewS3Uploader(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("STORAGE_PROVIDER desconhecido: %s", cfg.Provider)
	}
}
