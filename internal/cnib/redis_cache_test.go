package cnib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type stubRedis struct {
	values  map[string]string
	ttls    map[string]time.Duration
	deleted []string
	err     error
}

func newStubRedis() *stubRedis {
	return &stubRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	val, ok := s.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	s.values[key] = value.(string)
	s.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	for _, k := range keys {
		delete(s.values, k)
		s.deleted = append(s.deleted, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestRedisTokenCacheRoundTrip(t *testing.T) {
	client := newStubRedis()
	cache := NewRedisTokenCache(client)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "cnib:token"); ok || err != nil {
		t.Fatalf("expected miss without error, got ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, "cnib:token", "tok-1", 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if client.ttls["cnib:token"] != 5*time.Minute {
		t.Fatalf("expected ttl to be forwarded, got %v", client.ttls["cnib:token"])
	}

	token, ok, err := cache.Get(ctx, "cnib:token")
	if err != nil || !ok || token != "tok-1" {
		t.Fatalf("unexpected get: %q %v %v", token, ok, err)
	}

	if err := cache.Delete(ctx, "cnib:token"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "cnib:token"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestRedisTokenCacheSurfacesErrors(t *testing.T) {
	client := newStubRedis()
	client.err = errors.New("connection refused")
	cache := NewRedisTokenCache(client)

	if _, _, err := cache.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected get error")
	}
	if err := cache.Set(context.Background(), "k", "v", time.Minute); err == nil {
		t.Fatalf("expected set error")
	}
}

func TestCachedTokenSourceOverRedis(t *testing.T) {
	client := newStubRedis()
	source := &countingSource{token: "fresh"}
	cached := NewCachedTokenSource(source, NewRedisTokenCache(client), "cnib:token", time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		token, err := cached.Token(context.Background())
		if err != nil || token != "fresh" {
			t.Fatalf("unexpected token %q %v", token, err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected single upstream call, got %d", source.calls)
	}

	cached.Invalidate(context.Background())
	if len(client.deleted) != 1 {
		t.Fatalf("expected key deletion on invalidate")
	}
}
