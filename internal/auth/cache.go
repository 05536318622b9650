package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// expirySkew keeps a margin between "usable" and "expired" so a token is
// never attached to a request right at the edge of its lifetime.
const expirySkew = 60 * time.Second

// AuthError reports a failed delegated-credential refresh. Not transient:
// it usually means delegation is misconfigured or the user is unknown, and
// wants an operator, not a retry loop.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("refresh delegated token for %s: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type cachedToken struct {
	token  string
	expiry time.Time
}

// TokenCache holds the most recently minted access token per impersonated
// user and refreshes through the minter when an entry is absent or about to
// expire. Concurrent refreshes for the same user collapse to a single mint.
type TokenCache struct {
	minter Minter

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
	group  singleflight.Group
}

// NewTokenCache returns an empty cache backed by minter.
func NewTokenCache(minter Minter) *TokenCache {
	return &TokenCache{
		minter: minter,
		Clock:  time.Now,
		tokens: map[string]cachedToken{},
	}
}

// EnsureToken returns a valid access token for user, serving from cache
// when the entry outlives now plus the skew margin and minting otherwise.
// A successful mint overwrites the prior entry for that user; a failed one
// caches nothing and returns an *AuthError.
func (c *TokenCache) EnsureToken(ctx context.Context, user string) (string, error) {
	if tok, ok := c.lookup(user); ok {
		return tok, nil
	}

	// Mint is a blocking network call; singleflight ensures a burst of
	// cache misses for one user performs it once and shares the result.
	// The flight runs on a detached context: its result is shared by
	// every coalesced caller, so the first caller hanging up must not
	// fail the rest.
	mintCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(user, func() (any, error) {
		if tok, ok := c.lookup(user); ok {
			return tok, nil
		}
		tok, err := c.minter.Mint(mintCtx, user)
		if err != nil {
			return "", &AuthError{User: user, Err: err}
		}
		c.store(user, tok.AccessToken, tok.Expiry)
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Clear drops every cached token. Called on client teardown.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = map[string]cachedToken{}
}

func (c *TokenCache) lookup(user string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tokens[user]
	if !ok || !entry.expiry.After(c.Clock().Add(expirySkew)) {
		return "", false
	}
	return entry.token, true
}

func (c *TokenCache) store(user, token string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[user] = cachedToken{token: token, expiry: expiry}
}
