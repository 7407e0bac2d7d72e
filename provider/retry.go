package provider

import (
	"context"
	"time"
)

// Retry executes op up to attempts times with linear backoff, retrying only
// while isRetryable approves the failure. A nil isRetryable retries nothing.
func Retry(ctx context.Context, attempts int, delay time.Duration, isRetryable func(error) bool, op func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) || attempt >= attempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(attempt)):
		}
	}
	return lastErr
}
