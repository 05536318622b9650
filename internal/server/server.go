// Package server exposes the webhook endpoint that receives Gmail push
// notifications and a health check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/wonderstreet/mailingest/internal/ingest"
)

// Processor runs the fetch pipeline for one decoded notification.
type Processor interface {
	Process(ctx context.Context, n ingest.Notification) ([]*gmailv1.Message, error)
}

// Server translates pipeline outcomes into push-broker semantics: 204
// acknowledges the delivery, any other status forces redelivery. The
// durability model rests on that at-least-once contract.
type Server struct {
	pipeline Processor
	log      *slog.Logger
}

// New constructs a Server with a default logger when none is given.
func New(pipeline Processor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Server{pipeline: pipeline, log: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /api/v1/webhooks/gmail", s.handleWebhook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var env ingest.PushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.log.WarnContext(ctx, "unreadable webhook body", "error", err)
		http.Error(w, "malformed push envelope", http.StatusBadRequest)
		return
	}

	notification, err := ingest.Decode(env)
	if err != nil {
		// A malformed payload stays malformed on redelivery; reject it
		// permanently rather than looping.
		s.log.WarnContext(ctx, "rejecting notification", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := s.pipeline.Process(ctx, notification)
	if err != nil {
		var verr *ingest.ValidationError
		status := http.StatusInternalServerError
		if errors.As(err, &verr) {
			status = http.StatusBadRequest
		}
		s.log.ErrorContext(ctx, "pipeline failed", "user", notification.EmailAddress, "error", err)
		http.Error(w, "ingestion failed", status)
		return
	}

	s.log.InfoContext(ctx, "webhook processed", "user", notification.EmailAddress, "messages", len(messages))
	w.WriteHeader(http.StatusNoContent)
}
