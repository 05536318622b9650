package runtime

import (
	"log/slog"
	"os"
	"time"

	"github.com/wonderstreet/mailingest/internal/auth"
	"github.com/wonderstreet/mailingest/internal/rate"
)

// Config carries what the serving binary needs to stand up a mail client.
type Config struct {
	CredentialsFile string // service account key; empty falls back to GMAIL_SERVICE_ACCOUNT_FILE
	BaseURL         string
	Timeout         time.Duration
	Limiter         rate.Limiter
	Logger          *slog.Logger
}

// NewMailClient builds the credential store, token cache, and REST client
// as one unit sharing a lifetime. Callers own Close.
func NewMailClient(cfg Config) (*RESTClient, error) {
	creds, err := auth.NewCredentialStoreFromFile(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenCache(creds)
	return NewRESTClient(tokens, Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Limiter: cfg.Limiter,
		Logger:  cfg.Logger,
	}), nil
}

// DefaultLogger returns the process-wide structured logger.
func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
