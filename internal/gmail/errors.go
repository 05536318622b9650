package gmail

import (
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// IsRetryable reports whether a provider call failure is worth retrying at
// the caller boundary. Rate limiting, server-side errors, and network
// timeouts are transient; everything else (bad id, insufficient scope,
// malformed request) is terminal. The core itself never retries — this
// classification exists so a backoff layer can be added at the call site
// without touching pipeline control flow.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

// IsNotFound reports whether err is a provider 404, e.g. a history window
// that has expired or a message deleted before it could be fetched.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
