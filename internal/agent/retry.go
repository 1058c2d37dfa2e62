package agent

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// RetryConfig bounds the safe-failure handler's exponential backoff.
type RetryConfig struct {
	MaxRetries      int           // default 3
	BaseDelay       time.Duration // default 1000ms
	BackoffMultiple float64       // default 1.5
}

// DefaultRetryConfig matches the spec's stated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 1000 * time.Millisecond, BackoffMultiple: 1.5}
}

// SafeRun wraps an idempotent operation with retry-on-Timeout/Execution
// classified errors, sleeping BaseDelay*Multiple^(attempt-1) between
// attempts. Non-retryable error kinds (per vibeerr.Retryable) return
// immediately on the first failure, with their FallbackMessage attached.
func SafeRun(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1000 * time.Millisecond
	}
	if cfg.BackoffMultiple <= 0 {
		cfg.BackoffMultiple = 1.5
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := vibeerr.KindOf(err)
		if !vibeerr.Retryable(kind) {
			return fallbackError(kind, err)
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiple, float64(attempt-1)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fallbackError(vibeerr.KindOf(lastErr), lastErr)
}

// fallbackError wraps err with its kind's user-facing fallback message,
// without discarding the underlying cause.
func fallbackError(kind vibeerr.Kind, err error) error {
	return errors.Join(err, errors.New(vibeerr.FallbackMessage(kind)))
}
