package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pet-diary/internal/platform/httpclient"
	"pet-diary/internal/ports/auth"
)

var ErrUpstream = errors.New("identity upstream error")

// Config del proveedor de identidad remoto.
// En modo emulador BaseURL apunta al host del emulador.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Opcional, para tests.
	Transport http.RoundTripper
}

type Client struct {
	http   *httpclient.Client
	apiKey string
}

func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc, err := httpclient.New(cfg.BaseURL, timeout, cfg.Transport)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != "" && c.apiKey != ""
}

type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Disabled    bool   `json:"disabled"`
	} `json:"users"`
}

// Lookup resuelve el ID token contra accounts:lookup y devuelve la identidad.
func (c *Client) Lookup(ctx context.Context, idToken string) (auth.Claims, error) {
	if !c.IsConfigured() {
		return auth.Claims{}, auth.ErrNotConfigured
	}

	var out lookupResponse
	err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/v1/accounts:lookup",
		Query:  url.Values{"key": {c.apiKey}},
		Body:   map[string]string{"idToken": idToken},
		Out:    &out,
	})
	switch status := httpclient.StatusOf(err); {
	case err == nil:
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return auth.Claims{}, auth.ErrUnauthorized
	default:
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(out.Users) == 0 || out.Users[0].Disabled {
		return auth.Claims{}, auth.ErrUnauthorized
	}
	u := out.Users[0]
	return auth.Claims{
		UserID:      strings.TrimSpace(u.LocalID),
		Email:       strings.ToLower(strings.TrimSpace(u.Email)),
		DisplayName: strings.TrimSpace(u.DisplayName),
	}, nil
}
