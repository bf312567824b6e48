package embed

import (
	"context"
	"fmt"
	"time"
)

// retryInitialDelay is the backoff before the first retry; it doubles per
// attempt up to retryMaxDelay.
const (
	retryInitialDelay = 100 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
)

// withRetry executes fn with exponential backoff. fn receives the attempt
// number starting at 0. If the context is cancelled, the context error is
// returned immediately.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delay := retryInitialDelay
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(attempt); err != nil {
			lastErr = err

			if attempt == maxAttempts-1 {
				break
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
