package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pet-diary/internal/ports/auth"
)

type stubVerifier map[string]auth.Claims

func (s stubVerifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	c, ok := s[token]
	if !ok {
		return auth.Claims{}, auth.ErrUnauthorized
	}
	return c, nil
}

func whoami(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request) (auth.Claims, bool) {
	t.Helper()
	var (
		got auth.Claims
		ok  bool
	)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetClaims(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestAuthContext_DebugHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderDebugUserID, "u1")
	req.Header.Set(HeaderDebugUserEmail, "Ana@Example.com")

	c, ok := whoami(t, AuthContext(nil), req)
	if !ok || c.UserID != "u1" || c.Email != "ana@example.com" {
		t.Fatalf("unexpected claims: %+v ok=%v", c, ok)
	}

	if _, ok := whoami(t, AuthContext(nil), httptest.NewRequest(http.MethodGet, "/me", nil)); ok {
		t.Fatalf("no header must mean no claims")
	}
}

func TestAuthContext_Verifier(t *testing.T) {
	v := stubVerifier{"tok": {UserID: "u2", Email: "b@x.com"}}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	if c, ok := whoami(t, AuthContext(v), req); !ok || c.UserID != "u2" {
		t.Fatalf("bearer not verified: %+v", c)
	}

	// en modo verifier los headers de debug no tienen efecto
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderDebugUserID, "u1")
	if _, ok := whoami(t, AuthContext(v), req); ok {
		t.Fatalf("debug header accepted with verifier")
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	if _, ok := whoami(t, AuthContext(v), req); ok {
		t.Fatalf("invalid token produced claims")
	}
}

func TestAuthContext_WebSocketQueryToken(t *testing.T) {
	v := stubVerifier{"tok": {UserID: "u3"}}

	req := httptest.NewRequest(http.MethodGet, "/pets/p1/entries/stream?access_token=tok", nil)
	req.Header.Set("Upgrade", "websocket")
	if c, ok := whoami(t, AuthContext(v), req); !ok || c.UserID != "u3" {
		t.Fatalf("query token not accepted on upgrade: %+v", c)
	}

	// fuera de un upgrade el query param se ignora
	req = httptest.NewRequest(http.MethodGet, "/me?access_token=tok", nil)
	if _, ok := whoami(t, AuthContext(v), req); ok {
		t.Fatalf("query token accepted on plain request")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"":            "",
		"Bearer":      "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
