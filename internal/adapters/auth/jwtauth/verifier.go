package jwtauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pet-diary/internal/ports/auth"
)

type idClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier valida ID tokens HS256 firmados con un secreto compartido.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return auth.Claims{}, auth.ErrNotConfigured
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &idClaims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", auth.ErrUnauthorized, err)
	}

	c, ok := parsed.Claims.(*idClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return auth.Claims{}, auth.ErrUnauthorized
	}

	return auth.Claims{
		UserID:      strings.TrimSpace(c.Subject),
		Email:       strings.ToLower(strings.TrimSpace(c.Email)),
		DisplayName: strings.TrimSpace(c.Name),
	}, nil
}

// Sign emite un token con el mismo secreto (tests y tooling de desarrollo).
func (v *Verifier) Sign(userID, email string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := idClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
