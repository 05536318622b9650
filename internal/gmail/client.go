// Package gmail defines the narrow Gmail surface required by the ingestion
// pipeline, independent of how calls are authenticated or transported.
package gmail

import (
	"context"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// MessageID is an opaque provider-assigned message identifier.
type MessageID string

// Client is the provider surface the pipeline consumes. Implementations
// authenticate each call as the given impersonated user.
type Client interface {
	// ListHistory returns the ids of messages added to the mailbox since
	// startHistoryID, in provider order. An empty result is a valid outcome,
	// not an error: a notification may arrive after its window has already
	// been consumed.
	ListHistory(ctx context.Context, user string, startHistoryID uint64) ([]MessageID, error)

	// GetMessage fetches the full representation of a single message.
	// Fetches are idempotent by id.
	GetMessage(ctx context.Context, user string, id MessageID) (*gmailv1.Message, error)
}
