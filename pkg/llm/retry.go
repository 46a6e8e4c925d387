package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const maxAttempts = 3

// CompleteWithRetry calls the provider with exponential backoff on
// retryable errors (1s, 2s, 4s). Non-retryable errors return
// immediately.
func CompleteWithRetry(ctx context.Context, provider Provider, request Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		response, err := provider.Complete(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == maxAttempts-1 {
			break
		}

		delayMs := 1000 * (1 << attempt)
		log.Debug().
			Str("provider", provider.Name()).
			Int("attempt", attempt+1).
			Int("delayMs", delayMs).
			Msg("Retrying after model error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}
