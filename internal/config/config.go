package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultCNIBTokenURL         = "http://localhost:5678/webhook/cnib-token"
	defaultCNIBConsultaURL      = "https://api.indisponibilidade.org.br/v1/consulta-indisponibilidade"
	defaultCNIBConsultaStageURL = "https://stg-api.indisponibilidade.org.br/v1/consulta-indisponibilidade"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	AllowOrigins    []string
	PublicBaseURL   string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	Identity        IdentityConfig
	CNIB            CNIBConfig
	N8N             N8NConfig
	Storage         StorageConfig
	Tracing         TracingConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// IdentityConfig aponta para o serviço de identidade (Supabase Auth).
type IdentityConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
}

// CNIBConfig reúne endpoints e credenciais da Central de Indisponibilidade.
type CNIBConfig struct {
	Env            string
	TokenURL       string
	ConsultaURL    string
	CPFUsuario     string
	TokenCacheTTL  time.Duration
	TokenTimeout   time.Duration
	ConsultTimeout time.Duration
}

// N8NConfig descreve os webhooks de análise documental.
type N8NConfig struct {
	AnaliseWebhookURL string
	WebhookSecret     string
	Timeout           time.Duration
}

// StorageConfig seleciona o backend de arquivos.
type StorageConfig struct {
	Provider    string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// TracingConfig habilita exportação OTLP.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = strings.TrimSpace(getEnv("DB_DSN", getEnv("DATABASE_URL", "")))
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = strings.TrimSpace(getEnv("REDIS_URL", ""))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", "http://localhost:8080")), "/")

	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	if cfg.Identity, err = loadIdentity(); err != nil {
		return nil, err
	}
	if cfg.CNIB, err = loadCNIB(); err != nil {
		return nil, err
	}

	n8nTimeout, err := parseDurationEnv("N8N_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.N8N = N8NConfig{
		AnaliseWebhookURL: strings.TrimSpace(getEnv("N8N_ANALISE_WEBHOOK_URL", "")),
		WebhookSecret:     strings.TrimSpace(getEnv("N8N_WEBHOOK_SECRET", "")),
		Timeout:           n8nTimeout,
	}

	cfg.Storage = StorageConfig{
		Provider:    strings.ToLower(strings.TrimSpace(getEnv("STORAGE_PROVIDER", "noop"))),
		S3Endpoint:  strings.TrimSpace(getEnv("S3_ENDPOINT", "")),
		S3Region:    strings.TrimSpace(getEnv("S3_REGION", "us-east-1")),
		S3Bucket:    strings.TrimSpace(getEnv("S3_BUCKET", "")),
		S3AccessKey: strings.TrimSpace(getEnv("S3_ACCESS_KEY", "")),
		S3SecretKey: strings.TrimSpace(getEnv("S3_SECRET_KEY", "")),
		S3PublicURL: strings.TrimSpace(getEnv("S3_PUBLIC_URL", "")),
	}

	tracingEnabled, err := parseBoolEnv("OTEL_ENABLED", false)
	if err != nil {
		return nil, err
	}
	cfg.Tracing = TracingConfig{
		Enabled:     tracingEnabled,
		Endpoint:    strings.TrimSpace(getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		ServiceName: strings.TrimSpace(getEnv("OTEL_SERVICE_NAME", "cartorio-backoffice")),
	}

	return cfg, nil
}

func loadIdentity() (IdentityConfig, error) {
	idCfg := IdentityConfig{
		URL:       strings.TrimRight(strings.TrimSpace(getEnv("SUPABASE_URL", "")), "/"),
		AnonKey:   strings.TrimSpace(getEnv("SUPABASE_ANON_KEY", "")),
		JWTSecret: strings.TrimSpace(getEnv("SUPABASE_JWT_SECRET", "")),
	}
	if idCfg.URL == "" {
		return idCfg, errors.New("SUPABASE_URL obrigatório")
	}
	if _, err := url.ParseRequestURI(idCfg.URL); err != nil {
		return idCfg, errors.New("SUPABASE_URL inválida")
	}
	if idCfg.AnonKey == "" {
		return idCfg, errors.New("SUPABASE_ANON_KEY obrigatório")
	}
	return idCfg, nil
}

func loadCNIB() (CNIBConfig, error) {
	env := strings.ToLower(strings.TrimSpace(getEnv("CNIB_ENV", "production")))
	consultaDefault := defaultCNIBConsultaURL
	switch env {
	case "production", "producao":
		env = "production"
	case "staging", "homologacao":
		env = "staging"
		consultaDefault = defaultCNIBConsultaStageURL
	default:
		return CNIBConfig{}, errors.New("CNIB_ENV deve ser staging ou production")
	}

	cacheTTL, err := parseDurationEnv("CNIB_TOKEN_CACHE_TTL", 0)
	if err != nil {
		return CNIBConfig{}, err
	}

	return CNIBConfig{
		Env:            env,
		TokenURL:       strings.TrimSpace(getEnv("CNIB_TOKEN_URL", defaultCNIBTokenURL)),
		ConsultaURL:    strings.TrimSpace(getEnv("CNIB_CONSULTA_URL", consultaDefault)),
		CPFUsuario:     strings.TrimSpace(getEnv("CNIB_CPF_USUARIO", "")),
		TokenCacheTTL:  cacheTTL,
		TokenTimeout:   30 * time.Second,
		ConsultTimeout: 60 * time.Second,
	}, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.New(key + " inválido")
	}
	return b, nil
}
