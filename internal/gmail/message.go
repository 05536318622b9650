package gmail

import (
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// NoSubject is returned by Subject when a message carries no Subject header.
const NoSubject = "[No Subject]"

// Subject extracts the Subject header from a full message. Header name
// matching is case-insensitive per RFC 5322.
func Subject(msg *gmailv1.Message) string {
	if msg == nil || msg.Payload == nil {
		return NoSubject
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") {
			return h.Value
		}
	}
	return NoSubject
}
