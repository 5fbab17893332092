package storage

import (
	"context"
	"fmt"
	"time"

	"sftpush/pkg/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// RetryPolicy retries transport failures with a linear backoff of attempt*BaseDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Retryable defaults to IsTransportError.
	Retryable func(error) bool
	// Sleep defaults to a context-aware timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultRetryDelay,
	}
}

func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsTransportError
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the retry budget
// is spent. The last error is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, log *logger.Logger, op func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !policy.Retryable(err) || attempt >= policy.MaxRetries {
			return err
		}

		wait := policy.Backoff(attempt + 1)
		log.Warn("transport failure, retrying", map[string]any{
			"attempt":     attempt + 1,
			"max_retries": policy.MaxRetries,
			"wait":        wait.String(),
			"error":       err.Error(),
		})

		if sleepErr := policy.Sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("%w: last error: %v", sleepErr, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
