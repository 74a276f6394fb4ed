package auth

import (
	"fmt"
	"strings"
	"time"
)

// refreshMarginFraction is the share of a credential's original lifetime
// that must still remain for the credential to be considered usable.
// Refreshing before the hard expiry keeps in-flight requests from racing
// the deadline.
const refreshMarginFraction = 0.10

// BearerToken is a short-lived LWA access token. Tokens are immutable:
// an expired token is replaced wholesale, never refreshed in place.
type BearerToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the token can still be used at the given instant.
func (t BearerToken) Fresh(now time.Time) bool {
	return fresh(t.Value != "", t.IssuedAt, t.ExpiresAt, now)
}

// TemporaryCredentials are short-lived, scoped AWS credentials obtained by
// assuming a role. Same lifecycle discipline as BearerToken.
type TemporaryCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Fresh reports whether the credentials can still be used at the given instant.
func (c TemporaryCredentials) Fresh(now time.Time) bool {
	return fresh(c.AccessKeyID != "", c.IssuedAt, c.ExpiresAt, now)
}

func fresh(populated bool, issuedAt, expiresAt, now time.Time) bool {
	if !populated || !now.Before(expiresAt) {
		return false
	}
	lifetime := expiresAt.Sub(issuedAt)
	if lifetime <= 0 {
		return false
	}
	margin := time.Duration(float64(lifetime) * refreshMarginFraction)
	return expiresAt.Sub(now) >= margin
}

// AuthError reports a failure to obtain a bearer token or temporary
// credentials. It signals a configuration problem rather than a transient
// network condition, so callers must not retry it automatically.
type AuthError struct {
	Op         string // "token" or "exchange"
	StatusCode int    // zero when the failure happened before an HTTP response
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth %s failed", e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// scrub replaces occurrences of the given secret values in provider
// diagnostics so long-lived credentials never surface in error messages.
func scrub(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "[redacted]")
	}
	return s
}

// truncate bounds diagnostic bodies embedded in errors.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
