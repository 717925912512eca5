package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/ratelimit"
)

var ErrRetrievalFailure = errors.New("retrieval failed")

// RetryPolicy bounds attempts per page; waits grow exponentially with jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do calls fn until it succeeds, attempts run out or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ratelimit.Backoff(attempt-1, p.BaseDelay, p.MaxDelay)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetrievalFailure, attempts, lastErr)
}
