// Package auth manages the service-account identity and the per-user
// delegated tokens minted from it via domain-wide delegation.
package auth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// Minter produces a fresh delegated token for an impersonated user.
// Minting always performs a network round trip; callers cache.
type Minter interface {
	Mint(ctx context.Context, user string) (*oauth2.Token, error)
}

// CredentialStore holds the long-lived service-account credential and
// derives short-lived user-scoped credentials from it on demand. The
// derived credential is never persisted; it is rebuilt on every refresh.
type CredentialStore struct {
	base *jwt.Config
}

// NewCredentialStore parses service-account key material. With no scopes
// given it defaults to read-only mail access.
func NewCredentialStore(keyJSON []byte, scopes ...string) (*CredentialStore, error) {
	if len(scopes) == 0 {
		scopes = []string{gmailv1.GmailReadonlyScope}
	}
	cfg, err := google.JWTConfigFromJSON(keyJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return &CredentialStore{base: cfg}, nil
}

// NewCredentialStoreFromFile reads the key file at path, falling back to
// the GMAIL_SERVICE_ACCOUNT_FILE environment variable when path is empty.
func NewCredentialStoreFromFile(path string, scopes ...string) (*CredentialStore, error) {
	if path == "" {
		path = os.Getenv("GMAIL_SERVICE_ACCOUNT_FILE")
	}
	if path == "" {
		return nil, fmt.Errorf("no service account key: pass a path or set GMAIL_SERVICE_ACCOUNT_FILE")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	return NewCredentialStore(keyJSON, scopes...)
}

// TokenSource returns a delegated token source impersonating user. Used
// directly where a self-refreshing source is wanted (watch registration);
// the runtime client goes through Mint + TokenCache instead.
func (s *CredentialStore) TokenSource(ctx context.Context, user string) oauth2.TokenSource {
	cfg := *s.base
	cfg.Subject = user
	return cfg.TokenSource(ctx)
}

// Mint exchanges a signed assertion for a fresh access token impersonating
// user. Fails when delegation is not configured for the domain, the user is
// unknown, or the token endpoint is unreachable.
func (s *CredentialStore) Mint(ctx context.Context, user string) (*oauth2.Token, error) {
	return s.TokenSource(ctx, user).Token()
}

var _ Minter = (*CredentialStore)(nil)
