package editclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes the bounded retry-with-backoff behavior applied to each
// edit submission. It is a plain value so tests can exercise it without a
// network in sight.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy is three attempts with exponential backoff starting at 500ms
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. It returns the number of attempts made and the
// last error (nil on success).
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempts := 0
	wrapped := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		var editErr *Error
		if errors.As(err, &editErr) && editErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}

	maxRetries := uint64(0)
	if p.MaxAttempts > 1 {
		maxRetries = uint64(p.MaxAttempts - 1)
	}
	err := backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	return attempts, err
}
