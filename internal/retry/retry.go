// Package retry implements the bounded backoff policy applied to
// transient store writes and blob uploads. Everything else fails
// terminally on the first attempt.
package retry

import (
	"context"
	"time"

	"github.com/palaver-chat/palaver/internal/metrics"
)

const (
	maxAttempts = 3
	baseDelay   = 100 * time.Millisecond
)

// Do runs fn up to three times, doubling the delay between attempts.
// The last error is returned unwrapped so callers can classify it.
func Do(ctx context.Context, fn func() error) error {
	var err error
	delay := baseDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.WriteRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
