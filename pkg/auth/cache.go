package auth

import (
	"context"
	"sync"
	"time"
)

// Cache holds the current bearer token and temporary credentials behind a
// single mutex so concurrent callers cannot trigger redundant refreshes.
// The check-then-refresh-then-store sequence runs with the lock held; a
// fetch aborted by the caller's context stores nothing, so a later call
// sees the cache as stale and refreshes again.
type Cache struct {
	mu    sync.Mutex
	token BearerToken
	creds TemporaryCredentials
}

// NewCache creates an empty credential cache.
func NewCache() *Cache {
	return &Cache{}
}

// BearerToken returns the cached token if still fresh at now, otherwise
// invokes fetch and stores the replacement.
func (c *Cache) BearerToken(ctx context.Context, now time.Time, fetch func(context.Context) (BearerToken, error)) (BearerToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Fresh(now) {
		return c.token, nil
	}

	token, err := fetch(ctx)
	if err != nil {
		return BearerToken{}, err
	}
	c.token = token
	return token, nil
}

// Credentials returns the cached temporary credentials if still fresh at
// now, otherwise invokes fetch and stores the replacement.
func (c *Cache) Credentials(ctx context.Context, now time.Time, fetch func(context.Context) (TemporaryCredentials, error)) (TemporaryCredentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.creds.Fresh(now) {
		return c.creds, nil
	}

	creds, err := fetch(ctx)
	if err != nil {
		return TemporaryCredentials{}, err
	}
	c.creds = creds
	return creds, nil
}

// Invalidate drops both cached values so the next call refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = BearerToken{}
	c.creds = TemporaryCredentials{}
}
