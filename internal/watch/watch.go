// Package watch registers the one-time Gmail push subscription that makes
// the provider publish mailbox changes to a Pub/Sub topic. Runtime
// ingestion assumes this has already been performed out-of-band.
package watch

import (
	"context"
	"fmt"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// Spec names the mailbox to watch and the topic to notify.
type Spec struct {
	Mailbox string   // mailbox to watch, usually same as the impersonated user
	Project string   // GCP project owning the topic
	Topic   string   // short topic name
	Labels  []string // label filter; empty means INBOX only
}

// TopicName renders the fully qualified Pub/Sub topic.
func (s Spec) TopicName() string {
	return fmt.Sprintf("projects/%s/topics/%s", s.Project, s.Topic)
}

func (s Spec) validate() error {
	switch {
	case s.Mailbox == "":
		return fmt.Errorf("watch: mailbox is required")
	case s.Project == "":
		return fmt.Errorf("watch: project is required")
	case s.Topic == "":
		return fmt.Errorf("watch: topic is required")
	}
	return nil
}

// Result reports the provider's view of the new subscription.
type Result struct {
	HistoryID  uint64
	Expiration time.Time
}

// Register issues the watch call through an already-delegated Gmail
// service. The subscription expires after about seven days; re-running is
// safe and resets the clock.
func Register(ctx context.Context, svc *gmailv1.Service, spec Spec) (Result, error) {
	if err := spec.validate(); err != nil {
		return Result{}, err
	}
	labels := spec.Labels
	if len(labels) == 0 {
		labels = []string{"INBOX"}
	}
	req := &gmailv1.WatchRequest{
		LabelIds:  labels,
		TopicName: spec.TopicName(),
	}
	res, err := svc.Users.Watch(spec.Mailbox, req).Context(ctx).Do()
	if err != nil {
		return Result{}, fmt.Errorf("watch %s: %w", spec.Mailbox, err)
	}
	return Result{
		HistoryID:  res.HistoryId,
		Expiration: time.UnixMilli(res.Expiration),
	}, nil
}
