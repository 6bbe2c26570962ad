package lookup

import (
	"context"
	"time"

	"github.com/use-agent/placafipe/models"
)

// RetryPolicy bounds how a lookup is re-attempted. Only TRANSIENT_FAILURE
// is retried unless one of the opt-in flags widens it.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff is the fixed pause between attempts.
	Backoff time.Duration

	// RetryTimeouts also retries TIMEOUT outcomes.
	RetryTimeouts bool

	// RetryNotFound also retries NOT_FOUND outcomes, for an upstream that
	// is known to flap.
	RetryNotFound bool

	// OnRetry is called before each re-attempt with the error that caused it.
	OnRetry func(attempt int, err error)
}

// Retryable reports whether an already classified error may be retried.
func (p RetryPolicy) Retryable(err error) bool {
	switch models.KindOf(err) {
	case models.KindTransient:
		return true
	case models.KindTimeout:
		return p.RetryTimeouts
	case models.KindNotFound:
		return p.RetryNotFound
	}
	return false
}

// Run calls fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. It returns the result, the number of attempts
// made, and the last classified error unchanged.
//
// If ctx ends during a backoff pause, the previous attempt's error is
// returned rather than a new cancellation error.
func Run[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return zero, attempt - 1, lastErr
			case <-time.After(p.Backoff):
			}
		}

		out, err := fn(ctx, attempt)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = Classify(err)

		if !p.Retryable(lastErr) || ctx.Err() != nil {
			return zero, attempt, lastErr
		}
	}
	return zero, attempts, lastErr
}
