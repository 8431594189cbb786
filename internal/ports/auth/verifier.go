package auth

import (
	"context"
	"errors"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotConfigured = errors.New("auth verifier not configured")
)

// AuthVerifier verifica un ID token y devuelve claims o error.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
