package cnib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// tokenFields lista, em ordem de precedência, onde o serviço de token coloca o valor.
var tokenFields = []string{"access_token", "token", "accessToken"}

const maxBodySize = 4 << 20

// TokenSource fornece o token de acesso exigido pela API da CNIB.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenAcquirer busca um token novo no endpoint configurado a cada chamada.
type TokenAcquirer struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewTokenAcquirer cria o buscador de token; client nil usa http.Client padrão.
func NewTokenAcquirer(url string, timeout time.Duration, client *http.Client) *TokenAcquirer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &TokenAcquirer{url: strings.TrimSpace(url), client: client, timeout: timeout}
}

// Token executa GET no endpoint de token e lê o primeiro campo conhecido.
func (a *TokenAcquirer) Token(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return "", errTokenUnavailable("URL do serviço de token inválida", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", errTokenUnavailable(fmt.Sprintf("Tempo esgotado (%s) ao obter token da CNIB", a.timeout), err)
		}
		return "", errTokenUnavailable("Não foi possível conectar ao serviço de token da CNIB", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(err) {
			return "", errTokenUnavailable(fmt.Sprintf("Tempo esgotado (%s) ao obter token da CNIB", a.timeout), err)
		}
		return "", errTokenUnavailable("Falha ao ler resposta do serviço de token", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := errTokenUnavailable(fmt.Sprintf("Serviço de token respondeu %d: %s", resp.StatusCode, snippet(body)), nil)
		e.UpstreamStatus = resp.StatusCode
		return "", e
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errTokenUnavailable("Resposta do serviço de token não é JSON válido", err)
	}
	// webhooks do n8n costumam responder com uma lista de itens
	if list, ok := payload.([]any); ok && len(list) > 0 {
		payload = list[0]
	}

	obj, _ := payload.(map[string]any)
	for _, field := range tokenFields {
		if s, ok := obj[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}

	return "", errTokenUnavailable("Token ausente na resposta do serviço (campos "+strings.Join(tokenFields, ", ")+")", nil)
}

// TokenCache guarda o token entre consultas.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedTokenSource reaproveita o token por ttl; falhas do cache nunca bloqueiam a consulta.
type CachedTokenSource struct {
	source TokenSource
	cache  TokenCache
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedTokenSource envolve source com cache.
func NewCachedTokenSource(source TokenSource, cache TokenCache, key string, ttl time.Duration, logger zerolog.Logger) *CachedTokenSource {
	return &CachedTokenSource{source: source, cache: cache, key: key, ttl: ttl, logger: logger}
}

// Token devolve o token em cache ou busca um novo.
func (c *CachedTokenSource) Token(ctx context.Context) (string, error) {
	token, ok, err := c.cache.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cnib: cache de token indisponível")
	} else if ok {
		return token, nil
	}

	token, err = c.source.Token(ctx)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, c.key, token, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("cnib: não foi possível guardar token em cache")
	}
	return token, nil
}

// Invalidate descarta o token após recusa de autorização pela CNIB.
func (c *CachedTokenSource) Invalidate(ctx context.Context) {
	if err := c.cache.Delete(ctx, c.key); err != nil {
		c.logger.Warn().Err(err).Msg("cnib: não foi possível invalidar token em cache")
	}
}

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisTokenCache implementa TokenCache sobre Redis.
type RedisTokenCache struct {
	client redisCommander
}

// NewRedisTokenCache cria o cache com o cliente informado.
func NewRedisTokenCache(client redisCommander) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func (r *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, val != "", nil
}

func (r *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return r.client.Set(ctx, key, token, ttl).Err()
}

func (r *RedisTokenCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		s = "(corpo vazio)"
	}
	return s
}
