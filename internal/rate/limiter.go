// Package rate gates outbound provider calls so a burst of webhook
// deliveries cannot blow through Gmail per-user quota.
package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter blocks until the next outbound call may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Unlimited performs no gating. Used in tests and when -rps is 0.
type Unlimited struct{}

func (Unlimited) Wait(context.Context) error { return nil }

// TokenBucket releases a fixed number of calls per second, shared by all
// concurrent pipeline runs.
type TokenBucket struct {
	ticker   *time.Ticker
	tokens   chan struct{}
	stop     chan struct{}
	stopDone chan struct{}
}

// NewTokenBucket returns a limiter releasing rps tokens per second.
func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	tb := &TokenBucket{
		ticker:   time.NewTicker(time.Second / time.Duration(rps)),
		tokens:   make(chan struct{}, rps),
		stop:     make(chan struct{}),
		stopDone: make(chan struct{}),
	}
	// allow the first call to proceed immediately
	tb.tokens <- struct{}{}
	go tb.fill()
	return tb
}

func (t *TokenBucket) fill() {
	defer close(t.stopDone)
	for {
		// Ticker.Stop does not close the tick channel, so fill must watch
		// an explicit stop signal to exit.
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
		}
		select {
		case t.tokens <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop releases resources held by the limiter and waits for the fill
// goroutine to exit. Call at most once.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.stop)
	<-t.stopDone
}

var (
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = Unlimited{}
)
