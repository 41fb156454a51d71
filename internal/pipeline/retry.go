package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times, sleeping backoff (doubled each attempt)
// between failures. It is meant for transient errors inside stages (flaky
// external lookups): only after exhausting all attempts does the error become
// visible to the orchestrator. Context cancellation aborts the wait.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
}
