package supervisor

import (
	"context"
	"time"

	"github.com/sawpanic/hedgemesh/internal/errs"
)

// RetryablePredicate decides whether an error returned by an attempt
// is worth retrying. The default only retries transport and timeout
// failures; anything else (order rejects, validation errors) is
// final.
type RetryablePredicate func(error) bool

// DefaultRetryable retries transport and timeout kinds only.
func DefaultRetryable(err error) bool {
	kind, ok := errs.KindOf(err)
	if !ok {
		return false
	}
	return kind == errs.KindTransport || kind == errs.KindTimeout
}

// Do runs fn up to MaxRetries+1 times with exponential backoff between
// attempts, stopping early on a non-retryable error, success, or
// context cancellation.
func (s *Supervisor) Do(ctx context.Context, retryable RetryablePredicate, fn func(ctx context.Context) error) error {
	if retryable == nil {
		retryable = DefaultRetryable
	}
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries+1; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt > s.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryBackoff(attempt)):
		}
	}
	return lastErr
}
