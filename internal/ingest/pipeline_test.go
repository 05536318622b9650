package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/googleapi"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/wonderstreet/mailingest/internal/gmail"
)

type fakeClient struct {
	historyIDs   []gmail.MessageID
	historyErr   error
	historyCalls int

	getCalls []gmail.MessageID
	getErrAt map[gmail.MessageID]error
}

func (f *fakeClient) ListHistory(ctx context.Context, user string, startHistoryID uint64) ([]gmail.MessageID, error) {
	_ = ctx
	_ = user
	_ = startHistoryID
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.historyIDs, nil
}

func (f *fakeClient) GetMessage(ctx context.Context, user string, id gmail.MessageID) (*gmailv1.Message, error) {
	_ = ctx
	_ = user
	f.getCalls = append(f.getCalls, id)
	if err, ok := f.getErrAt[id]; ok {
		return nil, err
	}
	return &gmailv1.Message{Id: string(id)}, nil
}

func envelope(t *testing.T, payload string) PushEnvelope {
	t.Helper()
	return PushEnvelope{
		Message: PushMessage{
			Data:        base64.StdEncoding.EncodeToString([]byte(payload)),
			MessageID:   "pubsub-1",
			PublishTime: "2024-01-01T00:00:00Z",
		},
		Subscription: "projects/p/subscriptions/s",
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode(envelope(t, `{"emailAddress":"a@b.com","historyId":100}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Notification{EmailAddress: "a@b.com", HistoryID: 100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("notification mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		env  PushEnvelope
	}{
		{name: "missing-email", env: envelope(t, `{"historyId":100}`)},
		{name: "missing-history-id", env: envelope(t, `{"emailAddress":"a@b.com"}`)},
		{name: "empty-email", env: envelope(t, `{"emailAddress":"","historyId":100}`)},
		{name: "not-json", env: envelope(t, `not json`)},
		{name: "not-base64", env: PushEnvelope{Message: PushMessage{Data: "!!not-base64!!"}}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.env)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestProcessEmptyHistoryIsSuccess(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, slogDiscard())

	msgs, err := svc.Process(context.Background(), Notification{EmailAddress: "u@x.com", HistoryID: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty result, got %d messages", len(msgs))
	}
	if len(fake.getCalls) != 0 {
		t.Fatalf("expected zero message fetches, got %d", len(fake.getCalls))
	}
}

func TestProcessFetchesInProviderOrder(t *testing.T) {
	fake := &fakeClient{historyIDs: []gmail.MessageID{"m1", "m2"}}
	svc := NewService(fake, slogDiscard())

	msgs, err := svc.Process(context.Background(), Notification{EmailAddress: "u@x.com", HistoryID: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.historyCalls != 1 {
		t.Fatalf("expected one history call, got %d", fake.historyCalls)
	}
	wantCalls := []gmail.MessageID{"m1", "m2"}
	if diff := cmp.Diff(wantCalls, fake.getCalls); diff != "" {
		t.Fatalf("fetch order mismatch (-want +got):\n%s", diff)
	}
	gotIDs := make([]string, len(msgs))
	for i, m := range msgs {
		gotIDs[i] = m.Id
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, gotIDs); diff != "" {
		t.Fatalf("result order mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessAbortsBatchOnFetchFailure(t *testing.T) {
	fake := &fakeClient{
		historyIDs: []gmail.MessageID{"m1", "m2"},
		getErrAt:   map[gmail.MessageID]error{"m2": &googleapi.Error{Code: 500, Body: "backend error"}},
	}
	svc := NewService(fake, slogDiscard())

	msgs, err := svc.Process(context.Background(), Notification{EmailAddress: "u@x.com", HistoryID: 42})
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != 500 {
		t.Fatalf("expected provider 500 to propagate, got %v", err)
	}
	if msgs != nil {
		t.Fatalf("expected no partial result, got %d messages", len(msgs))
	}
	if len(fake.getCalls) != 2 {
		t.Fatalf("expected fetches up to the failure only, got %d", len(fake.getCalls))
	}
}

func TestProcessPropagatesHistoryFailure(t *testing.T) {
	fake := &fakeClient{historyErr: &googleapi.Error{Code: 500, Body: "backend error"}}
	svc := NewService(fake, slogDiscard())

	_, err := svc.Process(context.Background(), Notification{EmailAddress: "u@x.com", HistoryID: 42})
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != 500 {
		t.Fatalf("expected provider 500 to propagate, got %v", err)
	}
	if len(fake.getCalls) != 0 {
		t.Fatalf("expected no message fetches, got %d", len(fake.getCalls))
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
