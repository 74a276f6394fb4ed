package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTokenEndpoint = "https://api.amazon.com/auth/o2/token"
	defaultTokenTTL      = 3600 * time.Second
	maxDiagnosticBody    = 512
)

type tokenHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenConfig carries the long-lived LWA client credentials. Values are
// injected by the caller; nothing is read from the environment here.
type TokenConfig struct {
	Endpoint     string // defaults to the public LWA token endpoint
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenProvider exchanges a long-lived refresh token for a short-lived
// bearer token. It performs exactly one HTTP round trip per call; retry
// policy belongs to the API client.
type TokenProvider struct {
	client tokenHTTPClient
	cfg    TokenConfig
	now    func() time.Time
}

// NewTokenProvider creates a provider with a 30 second HTTP timeout.
func NewTokenProvider(cfg TokenConfig) *TokenProvider {
	return newTokenProvider(&http.Client{Timeout: 30 * time.Second}, cfg, time.Now)
}

func newTokenProvider(client tokenHTTPClient, cfg TokenConfig, now func() time.Time) *TokenProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultTokenEndpoint
	}
	return &TokenProvider{
		client: client,
		cfg:    cfg,
		now:    now,
	}
}

// FetchToken performs the refresh-token grant. Failures are reported as
// *AuthError carrying the status code and a truncated response body; the
// request body, which holds the secrets, never appears in errors.
func (p *TokenProvider) FetchToken(ctx context.Context) (BearerToken, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.cfg.RefreshToken},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return BearerToken{}, &AuthError{Op: "token", Message: "failed to build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return BearerToken{}, &AuthError{Op: "token", Message: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return BearerToken{}, &AuthError{Op: "token", StatusCode: resp.StatusCode, Message: "failed to read token response", Err: err}
	}

	diagnostic := truncate(scrub(string(body), p.cfg.ClientSecret, p.cfg.RefreshToken), maxDiagnosticBody)

	if resp.StatusCode != http.StatusOK {
		return BearerToken{}, &AuthError{Op: "token", StatusCode: resp.StatusCode, Message: diagnostic}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return BearerToken{}, &AuthError{Op: "token", StatusCode: resp.StatusCode, Message: "failed to parse token response", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return BearerToken{}, &AuthError{
			Op:         "token",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("token response missing access_token: %s", diagnostic),
		}
	}

	ttl := defaultTokenTTL
	if tokenResp.ExpiresIn > 0 {
		ttl = time.Duration(tokenResp.ExpiresIn) * time.Second
	}

	issued := p.now()
	return BearerToken{
		Value:     tokenResp.AccessToken,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
	}, nil
}
