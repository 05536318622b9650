package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestTopicName(t *testing.T) {
	spec := Spec{Project: "my-project", Topic: "gmail-notifications"}
	want := "projects/my-project/topics/gmail-notifications"
	if got := spec.TopicName(); got != want {
		t.Fatalf("TopicName() = %q, want %q", got, want)
	}
}

func TestRegisterValidatesSpec(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{name: "no-mailbox", spec: Spec{Project: "p", Topic: "t"}},
		{name: "no-project", spec: Spec{Mailbox: "me", Topic: "t"}},
		{name: "no-topic", spec: Spec{Mailbox: "me", Project: "p"}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Register(context.Background(), nil, tc.spec); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRegister(t *testing.T) {
	var gotBody gmailv1.WatchRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/watch") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode watch request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"historyId":"12345","expiration":"1700000000000"}`)
	}))
	t.Cleanup(ts.Close)

	svc, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(ts.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	res, err := Register(context.Background(), svc, Spec{
		Mailbox: "me",
		Project: "my-project",
		Topic:   "gmail-notifications",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.TopicName != "projects/my-project/topics/gmail-notifications" {
		t.Fatalf("topic = %q", gotBody.TopicName)
	}
	if len(gotBody.LabelIds) != 1 || gotBody.LabelIds[0] != "INBOX" {
		t.Fatalf("labels = %v, want INBOX default", gotBody.LabelIds)
	}
	if res.HistoryID != 12345 {
		t.Fatalf("history id = %d", res.HistoryID)
	}
	if !res.Expiration.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("expiration = %v", res.Expiration)
	}
}
