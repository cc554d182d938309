package transfer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy parameterizes the single retry-with-backoff helper every
// transfer path goes through.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // first backoff interval
	MaxDelay    time.Duration // interval cap
	Retryable   func(error) bool
}

// DefaultRetryPolicy matches the observed client behavior: 4 attempts,
// base*2^attempt backoff capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Retryable:   IsRetryable,
	}
}

// retry runs fn until it succeeds, returns a non-retryable error, or
// exhausts the attempt budget. onAttempt is called before each try with
// the 1-based attempt number.
func retry(ctx context.Context, policy RetryPolicy, onAttempt func(int), fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.MaxInterval = policy.MaxDelay
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0.2

	attempt := 0
	op := func() error {
		attempt++
		if onAttempt != nil {
			onAttempt(attempt)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	maxRetries := uint64(0)
	if policy.MaxAttempts > 1 {
		maxRetries = uint64(policy.MaxAttempts - 1)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}
