package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v := NewJWTVerifier("super-secret-jwt-token-with-at-least-32-characters")
	token, err := v.IssueToken("9a1f4f0e-2c1b-4a57-9f65-1d4a3b0c9e11", "escrevente@cartorio.com.br", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.ID != "9a1f4f0e-2c1b-4a57-9f65-1d4a3b0c9e11" || id.Email != "escrevente@cartorio.com.br" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.AccessToken != token {
		t.Fatal("access token must be preserved")
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier("super-secret-jwt-token-with-at-least-32-characters")
	other := NewJWTVerifier("another-secret-jwt-token-with-32-characters!!")

	foreign, _ := other.IssueToken("user", "", time.Minute)
	expired, _ := v.IssueToken("user", "", -time.Minute)

	for name, token := range map[string]string{"foreign": foreign, "expired": expired, "garbage": "a.b.c"} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken got %v", err)
			}
		})
	}

	if _, err := v.Verify(context.Background(), ""); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated got %v", err)
	}
}
