// Package ingest turns a Pub/Sub push notification into the list of newly
// arrived messages it announces.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/wonderstreet/mailingest/internal/gmail"
)

// PushEnvelope is the push-notification body delivered by Pub/Sub.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

// PushMessage wraps the base64-encoded Gmail notification payload.
type PushMessage struct {
	Data        string `json:"data"`
	MessageID   string `json:"messageId"`
	PublishTime string `json:"publishTime"`
}

// Notification identifies which mailbox changed and the history marker to
// query from. Immutable once decoded.
type Notification struct {
	EmailAddress string
	HistoryID    uint64
}

// ValidationError reports a malformed or incomplete notification payload.
// Never retried: redelivering the same envelope cannot make it well-formed.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid notification: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid notification: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Decode extracts the Gmail notification from a push envelope. The payload
// is base64-encoded JSON of the form {"emailAddress": ..., "historyId": ...};
// both fields are required.
func Decode(env PushEnvelope) (Notification, error) {
	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return Notification{}, &ValidationError{Reason: "message data is not base64", Err: err}
	}
	var payload struct {
		EmailAddress string  `json:"emailAddress"`
		HistoryID    *uint64 `json:"historyId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Notification{}, &ValidationError{Reason: "message data is not valid JSON", Err: err}
	}
	if payload.EmailAddress == "" {
		return Notification{}, &ValidationError{Reason: "missing emailAddress"}
	}
	if payload.HistoryID == nil {
		return Notification{}, &ValidationError{Reason: "missing historyId"}
	}
	return Notification{EmailAddress: payload.EmailAddress, HistoryID: *payload.HistoryID}, nil
}

// Service runs the fetch pipeline for decoded notifications. One instance
// is shared by all concurrent webhook deliveries.
type Service struct {
	Client gmail.Client
	Logger *slog.Logger
}

// NewService constructs a Service with a default logger when none is given.
func NewService(client gmail.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Client: client, Logger: logger}
}

// Process fetches every message added since the notification's history
// marker, in provider order. An empty history window is success with an
// empty result. Any single fetch failure aborts the batch with no partial
// result: message fetches are idempotent by id, so the broker redelivering
// the notification re-fetches everything safely.
func (s *Service) Process(ctx context.Context, n Notification) ([]*gmailv1.Message, error) {
	logger := s.Logger.With("user", n.EmailAddress, "history_id", n.HistoryID)
	logger.InfoContext(ctx, "processing notification")

	ids, err := s.Client.ListHistory(ctx, n.EmailAddress, n.HistoryID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		logger.InfoContext(ctx, "no new messages in history window")
		return []*gmailv1.Message{}, nil
	}

	messages := make([]*gmailv1.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.Client.GetMessage(ctx, n.EmailAddress, id)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "fetched message", "id", id, "subject", gmail.Subject(msg))
		messages = append(messages, msg)
	}

	logger.InfoContext(ctx, "notification processed", "count", len(messages))
	return messages, nil
}
