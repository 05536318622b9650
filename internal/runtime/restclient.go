// Package runtime provides the authenticated REST implementation of
// gmail.Client and the wiring that builds it from configuration.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/wonderstreet/mailingest/internal/auth"
	"github.com/wonderstreet/mailingest/internal/gmail"
	"github.com/wonderstreet/mailingest/internal/rate"
)

const (
	// DefaultBaseURL is the Gmail REST surface.
	DefaultBaseURL = "https://www.googleapis.com/gmail/v1"
	// DefaultTimeout bounds any single provider request.
	DefaultTimeout = 30 * time.Second
)

// RESTClient executes authenticated calls against the Gmail REST API on
// behalf of impersonated users. One instance, with its connection pool and
// token cache, is shared by all concurrent pipeline runs.
type RESTClient struct {
	baseURL string
	httpc   *http.Client
	tokens  *auth.TokenCache
	limiter rate.Limiter
	log     *slog.Logger
}

// NewRESTClient builds a client over tokens. Zero-valued options fall back
// to DefaultBaseURL, DefaultTimeout, no rate limiting, and the default
// stderr logger.
func NewRESTClient(tokens *auth.TokenCache, opts Options) *RESTClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = DefaultLogger()
	}
	return &RESTClient{
		baseURL: opts.BaseURL,
		httpc:   &http.Client{Timeout: opts.Timeout},
		tokens:  tokens,
		limiter: opts.Limiter,
		log:     opts.Logger,
	}
}

// Options configures a RESTClient.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Limiter rate.Limiter
	Logger  *slog.Logger
}

// ListHistory returns the ids of messages added since startHistoryID for
// the impersonated user, following pagination, in provider order.
func (c *RESTClient) ListHistory(ctx context.Context, user string, startHistoryID uint64) ([]gmail.MessageID, error) {
	var ids []gmail.MessageID
	pageToken := ""
	for {
		q := url.Values{
			"startHistoryId": {strconv.FormatUint(startHistoryID, 10)},
			"historyTypes":   {"messageAdded"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page gmailv1.ListHistoryResponse
		if err := c.get(ctx, user, "/users/me/history", q, &page); err != nil {
			return nil, fmt.Errorf("list history for %s: %w", user, err)
		}
		for _, rec := range page.History {
			for _, added := range rec.MessagesAdded {
				if added.Message == nil {
					continue
				}
				ids = append(ids, gmail.MessageID(added.Message.Id))
			}
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetMessage fetches the full representation of one message for the
// impersonated user.
func (c *RESTClient) GetMessage(ctx context.Context, user string, id gmail.MessageID) (*gmailv1.Message, error) {
	q := url.Values{"format": {"full"}}
	var msg gmailv1.Message
	if err := c.get(ctx, user, "/users/me/messages/"+url.PathEscape(string(id)), q, &msg); err != nil {
		return nil, fmt.Errorf("get message %s for %s: %w", id, user, err)
	}
	return &msg, nil
}

// Close releases the connection pool and the token cache together. Safe on
// every exit path; the client must not be used afterwards.
func (c *RESTClient) Close() {
	c.httpc.CloseIdleConnections()
	c.tokens.Clear()
}

// get performs one authenticated GET and decodes the JSON response into
// out. Non-2xx responses surface as *googleapi.Error carrying status code
// and body; no retry happens here.
func (c *RESTClient) get(ctx context.Context, user, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.tokens.EnsureToken(ctx, user)
	if err != nil {
		return err
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if err := googleapi.CheckResponse(res); err != nil {
		c.log.DebugContext(ctx, "provider call failed", "path", path, "user", user, "error", err)
		return err
	}
	return json.NewDecoder(res.Body).Decode(out)
}

var _ gmail.Client = (*RESTClient)(nil)
