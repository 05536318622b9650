package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wonderstreet/mailingest/internal/ingest"
	"github.com/wonderstreet/mailingest/internal/rate"
	"github.com/wonderstreet/mailingest/internal/runtime"
	"github.com/wonderstreet/mailingest/internal/server"
)

type serveConfig struct {
	listen      string
	credentials string
	baseURL     string
	timeout     time.Duration
	rps         int
}

func main() {
	cfg := parseServeFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailingest-serve failed", "error", err)
		os.Exit(1)
	}
}

func parseServeFlags() serveConfig {
	listen := flag.String("listen", ":8080", "address to serve on")
	credentials := flag.String("credentials", "", "service account key file (defaults to GMAIL_SERVICE_ACCOUNT_FILE)")
	baseURL := flag.String("base-url", runtime.DefaultBaseURL, "Gmail REST base URL")
	timeout := flag.Duration("timeout", runtime.DefaultTimeout, "per-request timeout")
	rps := flag.Int("rps", 10, "max provider requests per second (0 disables limiting)")
	flag.Parse()

	return serveConfig{
		listen:      *listen,
		credentials: *credentials,
		baseURL:     *baseURL,
		timeout:     *timeout,
		rps:         *rps,
	}
}

func run(cfg serveConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.DefaultLogger()

	var limiter rate.Limiter
	if cfg.rps > 0 {
		bucket := rate.NewTokenBucket(cfg.rps)
		limiter = bucket
		defer bucket.Stop()
	}

	client, err := runtime.NewMailClient(runtime.Config{
		CredentialsFile: cfg.credentials,
		BaseURL:         cfg.baseURL,
		Timeout:         cfg.timeout,
		Limiter:         limiter,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	defer client.Close()

	pipeline := ingest.NewService(client, logger)
	srv := &http.Server{
		Addr:              cfg.listen,
		Handler:           server.New(pipeline, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}
