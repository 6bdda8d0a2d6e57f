package exchange

import (
	"context"
	"time"
)

// RetryPolicy is the single retry discipline shared by fetch paths and
// order submission: bounded attempts, exponential backoff, and a
// predicate deciding which errors are worth another try.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient upstream failures a few times with
// short exponential backoff. Auth failures are excluded by IsTransient.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs fn until it succeeds, exhausts the attempt budget, the error is
// classified non-retryable, or the context is canceled. The last error is
// returned unwrapped so callers can still classify it.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
