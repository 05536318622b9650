// mailingest-watch registers the push subscription on a mailbox. Run once
// per mailbox (and again before the roughly-weekly expiry); the serving
// binary has no dependency on it beyond assuming it has happened.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/wonderstreet/mailingest/internal/auth"
	"github.com/wonderstreet/mailingest/internal/runtime"
	"github.com/wonderstreet/mailingest/internal/watch"
)

type watchConfig struct {
	credentials string
	user        string
	mailbox     string
	project     string
	topic       string
	labels      string
}

func main() {
	cfg := parseWatchFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailingest-watch failed", "error", err)
		os.Exit(1)
	}
}

func parseWatchFlags() watchConfig {
	credentials := flag.String("credentials", "", "service account key file (defaults to GMAIL_SERVICE_ACCOUNT_FILE)")
	user := flag.String("user", "", "user to impersonate via domain-wide delegation")
	mailbox := flag.String("mailbox", "me", "mailbox to watch")
	project := flag.String("project", "", "GCP project owning the Pub/Sub topic")
	topic := flag.String("topic", "gmail-notifications", "Pub/Sub topic name")
	labels := flag.String("labels", "", "comma separated label filter (default INBOX)")
	flag.Parse()

	return watchConfig{
		credentials: *credentials,
		user:        *user,
		mailbox:     *mailbox,
		project:     *project,
		topic:       *topic,
		labels:      *labels,
	}
}

func run(cfg watchConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.user == "" {
		return fmt.Errorf("-user is required")
	}

	logger := runtime.DefaultLogger()

	creds, err := auth.NewCredentialStoreFromFile(cfg.credentials)
	if err != nil {
		return err
	}
	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(creds.TokenSource(ctx, cfg.user)))
	if err != nil {
		return fmt.Errorf("create gmail service: %w", err)
	}

	spec := watch.Spec{
		Mailbox: cfg.mailbox,
		Project: cfg.project,
		Topic:   cfg.topic,
		Labels:  splitList(cfg.labels),
	}
	logger.Info("registering watch", "mailbox", spec.Mailbox, "topic", spec.TopicName())

	res, err := watch.Register(ctx, svc, spec)
	if err != nil {
		return err
	}

	logger.Info("watch registered", "history_id", res.HistoryID, "expires", res.Expiration)
	return nil
}

func splitList(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
