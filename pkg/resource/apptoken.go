package resource

import (
	"context"
	"sync"
	"time"
)

// AppInstallationTokenFetcher mints a fresh GitHub App installation token;
// the real implementation signs an app JWT and calls the installations
// access-token endpoint. Abstracted so BareRepo's clone-auth selection can
// be tested without real App credentials.
type AppInstallationTokenFetcher interface {
	FetchInstallationToken(ctx context.Context, installationID string) (token string, expiresAt time.Time, err error)
}

type cachedAppToken struct {
	token     string
	expiresAt time.Time
}

// AppTokenCache caches one installation token per installation id, reusing
// it until shortly before expiry instead of minting a new one per clone.
// Grounded on ghproxy/apptokenequalizer's mutex-protected map cache, which
// solves the identical problem (many concurrent callers, one token per
// app id, reuse until near-expiry) for the proxy's own credential-minting
// path; here the critical section is a clone operation rather than an
// HTTP round trip, so the cache lives standalone instead of wrapped
// around a RoundTripper.
type AppTokenCache struct {
	fetcher AppInstallationTokenFetcher
	grace   time.Duration

	mu    sync.Mutex
	cache map[string]cachedAppToken
}

// NewAppTokenCache builds a cache that refreshes a token once it is within
// grace of expiring; spec §4.4 calls for a 5 minute grace window.
func NewAppTokenCache(fetcher AppInstallationTokenFetcher, grace time.Duration) *AppTokenCache {
	return &AppTokenCache{
		fetcher: fetcher,
		grace:   grace,
		cache:   map[string]cachedAppToken{},
	}
}

// Token returns a cached or freshly-minted installation token.
func (c *AppTokenCache) Token(ctx context.Context, installationID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[installationID]; ok && cached.expiresAt.Add(-c.grace).After(time.Now()) {
		return cached.token, nil
	}

	token, expiresAt, err := c.fetcher.FetchInstallationToken(ctx, installationID)
	if err != nil {
		return "", err
	}
	c.cache[installationID] = cachedAppToken{token: token, expiresAt: expiresAt}
	return token, nil
}

// Invalidate drops any cached token for installationID, forcing the next
// Token call to mint a fresh one. Called when a webhook reports the
// installation was suspended, deleted, or had its repository grant
// changed, since the cached token's permissions may no longer be valid.
func (c *AppTokenCache) Invalidate(installationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, installationID)
}
