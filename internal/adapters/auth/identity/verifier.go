package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pet-diary/internal/ports/auth"
)

// Verifier implementa auth.AuthVerifier usando el proveedor remoto.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, auth.ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, auth.ErrUnauthorized
	}

	claims, err := v.client.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return auth.Claims{}, err
		}
		return auth.Claims{}, fmt.Errorf("identity verify failed: %w", err)
	}
	if claims.UserID == "" {
		return auth.Claims{}, errors.New("identity response missing localId")
	}
	return claims, nil
}
