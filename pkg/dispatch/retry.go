package dispatch

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how many times a delivery is attempted and how long to
// wait between attempts. The backoff grows linearly with the attempt number.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration

	// sleep is swappable so tests run without real waits.
	sleep func(time.Duration)
}

// NewRetryPolicy creates a policy with the given bounds.
func NewRetryPolicy(maxAttempts int, backoff time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Backoff: backoff, sleep: time.Sleep}
}

// Do runs fn up to MaxAttempts times, backing off between attempts. It
// stops early when the context is cancelled or when the breaker reports
// open: retrying a short-circuited call would only burn the attempt budget
// against a downstream known to be down.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		if attempt < p.MaxAttempts {
			sleep(time.Duration(attempt) * p.Backoff)
		}
	}
	return err
}
