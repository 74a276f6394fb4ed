package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/highfocus/sourcing-tool/pkg/auth"
	"github.com/highfocus/sourcing-tool/pkg/sigv4"
)

const (
	defaultMaxAttempts    = 4
	defaultBackoffBase    = 250 * time.Millisecond
	defaultSigningService = "execute-api"
	maxErrorBody          = 2048
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type tokenProvider interface {
	FetchToken(ctx context.Context) (auth.BearerToken, error)
}

type credentialExchanger interface {
	Exchange(ctx context.Context) (auth.TemporaryCredentials, error)
}

type requestSigner interface {
	Sign(method string, u *url.URL, headers map[string]string, payload []byte, creds sigv4.Credentials, signingTime time.Time) (map[string]string, error)
}

// Config carries the marketplace endpoint and retry policy for a Client.
type Config struct {
	Endpoint    string // e.g. https://sellingpartnerapi-na.amazon.com
	Region      string
	MaxAttempts int           // total attempts per call, defaults to 4
	BackoffBase time.Duration // initial retry delay, defaults to 250ms
}

// Client issues signed marketplace API requests with bounded retry. Every
// request carries both authentication layers: the LWA bearer token header
// and the SigV4 signature computed from temporary role credentials.
//
// Per call the sequence is fixed: acquire auth (cached), sign with the
// current timestamp, send. 429 and 5xx responses and network failures are
// retried with exponential backoff; any other 4xx fails immediately.
// Authentication and signing failures propagate without retry.
type Client struct {
	httpClient  httpDoer
	tokens      tokenProvider
	exchanger   credentialExchanger
	signer      requestSigner
	cache       *auth.Cache
	endpoint    *url.URL
	maxAttempts int
	backoffBase time.Duration
	now         func() time.Time
}

// New creates a client with a 45 second HTTP timeout.
func New(cfg Config, tokens *auth.TokenProvider, exchanger *auth.STSExchanger) (*Client, error) {
	return newClient(cfg, &http.Client{Timeout: 45 * time.Second}, tokens, exchanger,
		sigv4.New(cfg.Region, defaultSigningService), auth.NewCache(), time.Now)
}

func newClient(cfg Config, httpClient httpDoer, tokens tokenProvider, exchanger credentialExchanger, signer requestSigner, cache *auth.Cache, now func() time.Time) (*Client, error) {
	endpoint, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", cfg.Endpoint)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	return &Client{
		httpClient:  httpClient,
		tokens:      tokens,
		exchanger:   exchanger,
		signer:      signer,
		cache:       cache,
		endpoint:    endpoint,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		now:         now,
	}, nil
}

// Call issues one authenticated request against the configured endpoint.
// body, when non-nil, is JSON-encoded. The returned error is one of
// *auth.AuthError, *sigv4.SigningError, *TerminalAPIError, or a context
// error.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body any) (Result, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	u := *c.endpoint
	u.Path = c.endpoint.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	attempt := 0
	var result Result

	operation := func() error {
		attempt++
		res, err := c.attempt(ctx, method, &u, payload)
		if err != nil {
			var transient *TransientAPIError
			if errors.As(err, &transient) {
				return err
			}
			return backoff.Permanent(err)
		}
		res.Attempt = attempt
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffBase
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		var transient *TransientAPIError
		if errors.As(err, &transient) {
			return Result{}, &TerminalAPIError{
				StatusCode: transient.StatusCode,
				Body:       transient.Body,
				Attempts:   attempt,
				Err:        transient,
			}
		}
		var terminal *TerminalAPIError
		if errors.As(err, &terminal) {
			terminal.Attempts = attempt
		}
		return Result{}, err
	}
	return result, nil
}

// attempt runs one acquire-sign-send cycle.
func (c *Client) attempt(ctx context.Context, method string, u *url.URL, payload []byte) (Result, error) {
	now := c.now()

	token, err := c.cache.BearerToken(ctx, now, c.tokens.FetchToken)
	if err != nil {
		return Result{}, err
	}
	creds, err := c.cache.Credentials(ctx, now, c.exchanger.Exchange)
	if err != nil {
		return Result{}, err
	}

	headers := map[string]string{
		"x-amz-access-token": token.Value,
		"content-type":       "application/json",
		"accept":             "application/json",
	}
	signedHeaders, err := c.signer.Sign(method, u, headers, payload, sigv4.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, now)
	if err != nil {
		return Result{}, err
	}

	var bodyReader io.Reader
	if len(payload) > 0 {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), bodyReader)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range signedHeaders {
		if strings.EqualFold(k, "host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &TransientAPIError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &TransientAPIError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			IsJSON:     looksLikeJSON(resp.Header.Get("Content-Type"), respBody),
		}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, &TransientAPIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody))}
	default:
		return Result{}, &TerminalAPIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody)), Attempts: 1}
	}
}

func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "json") {
		return json.Valid(body)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	return (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(body)
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "...(truncated)"
}
