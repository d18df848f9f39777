package auth

import (
	"context"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

type stubVerifier struct {
	valid map[string]string
	calls []string
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	s.calls = append(s.calls, token)
	if id, ok := s.valid[token]; ok {
		return &Identity{ID: id, AccessToken: token}, nil
	}
	return nil, ErrInvalidToken
}

func newTestResolver(v Verifier) *Resolver {
	return NewResolver(v, "https://abcdxyz.supabase.co", zerolog.Nop())
}

func TestResolverCookieNames(t *testing.T) {
	r := newTestResolver(&stubVerifier{})
	names := r.CookieNames()
	want := []string{"sb-access-token", "supabase-auth-token", "sb-abcdxyz-auth-token"}
	if len(names) != len(want) {
		t.Fatalf("expected %v got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v got %v", want, names)
		}
	}
}

func TestResolverBearerWins(t *testing.T) {
	v := &stubVerifier{valid: map[string]string{"bearer-ok": "user-1", "cookie-ok": "user-2"}}
	r := newTestResolver(v)

	id, err := r.Resolve(context.Background(), "Bearer bearer-ok", "sb-access-token=cookie-ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ID != "user-1" {
		t.Fatalf("expected bearer identity, got %s", id.ID)
	}
	if len(v.calls) != 1 {
		t.Fatalf("cookies must not be consulted, calls=%v", v.calls)
	}
}

func TestResolverFallsBackToCookieWhenBearerInvalid(t *testing.T) {
	v := &stubVerifier{valid: map[string]string{"cookie-ok": "user-2"}}
	r := newTestResolver(v)

	id, err := r.Resolve(context.Background(), "Bearer expired", "foo=bar; sb-access-token=cookie-ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ID != "user-2" {
		t.Fatalf("expected cookie identity, got %s", id.ID)
	}
}

func TestResolverCookiePrecedence(t *testing.T) {
	v := &stubVerifier{valid: map[string]string{"a": "from-access", "b": "from-auth", "c": "from-project"}}
	r := newTestResolver(v)

	id, err := r.Resolve(context.Background(), "", "sb-abcdxyz-auth-token=c; supabase-auth-token=b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ID != "from-auth" {
		t.Fatalf("expected supabase-auth-token to win, got %s", id.ID)
	}
}

func TestResolverProjectCookieFormats(t *testing.T) {
	v := &stubVerifier{valid: map[string]string{"jwt-token": "user-3"}}
	r := newTestResolver(v)

	arrayValue := url.QueryEscape(`["jwt-token","refresh",null,null,null]`)
	objectValue := url.QueryEscape(`{"access_token":"jwt-token","refresh_token":"r"}`)
	b64Value := "base64-" + base64.RawURLEncoding.EncodeToString([]byte(`{"access_token":"jwt-token"}`))

	cases := map[string]string{
		"array":   "sb-abcdxyz-auth-token=" + arrayValue,
		"object":  "sb-abcdxyz-auth-token=" + objectValue,
		"base64":  "sb-abcdxyz-auth-token=" + b64Value,
		"chunked": "sb-abcdxyz-auth-token.0=" + url.QueryEscape(`["jwt-`) + "; sb-abcdxyz-auth-token.1=" + url.QueryEscape(`token"]`),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			id, err := r.Resolve(context.Background(), "", header)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.ID != "user-3" {
				t.Fatalf("expected user-3 got %s", id.ID)
			}
		})
	}
}

func TestResolverUnauthenticated(t *testing.T) {
	v := &stubVerifier{valid: map[string]string{}}
	r := newTestResolver(v)

	cases := []struct {
		name   string
		auth   string
		cookie string
	}{
		{"nothing", "", ""},
		{"invalid bearer only", "Bearer nope", ""},
		{"unrelated cookies", "", "theme=dark; lang=pt"},
		{"invalid cookie", "", "sb-access-token=nope"},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.Resolve(context.Background(), tc.auth, tc.cookie); err != ErrUnauthenticated {
				t.Fatalf("expected ErrUnauthenticated got %v", err)
			}
		})
	}
}

func TestParseCookies(t *testing.T) {
	cookies := ParseCookies(" a=1; b = x%20y ;c=k=v; broken; a=2")
	if cookies["a"] != "1" {
		t.Fatalf("first value must win, got %q", cookies["a"])
	}
	if cookies["b"] != "x y" {
		t.Fatalf("expected decoded value, got %q", cookies["b"])
	}
	if cookies["c"] != "k=v" {
		t.Fatalf("split must happen on first '=', got %q", cookies["c"])
	}
	if _, ok := cookies["broken"]; ok {
		t.Fatal("entry without '=' must be ignored")
	}
}

func TestProjectRef(t *testing.T) {
	cases := map[string]string{
		"https://abcdxyz.supabase.co": "abcdxyz",
		"https://ABCD.supabase.co/":   "abcd",
		"http://127.0.0.1:54321":      "",
		"http://localhost:54321":      "localhost",
		"":                            "",
	}
	for in, want := range cases {
		if got := ProjectRef(in); got != want {
			t.Fatalf("ProjectRef(%q) = %q want %q", in, got, want)
		}
	}
}
