package payment

import (
	"context"
	"math/rand"
	"time"

	apperrors "github.com/paygate/server/internal/utils/errors"
)

// RetryConfig bounds the retries of gateway calls.
type RetryConfig struct {
	MaxAttempts  int           // total attempts including the first
	BaseDelay    time.Duration // delay before the second attempt
	MaxDelay     time.Duration
	JitterFactor float64 // 0.25 = ±25%
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.25,
	}
}

// Retrier repeats a call while it fails with a retryable error. Only
// GatewayUnavailable is retryable; a rejection is final on the first answer.
type Retrier struct {
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier.
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retrier{config: cfg, sleep: sleepContext}
}

// Do calls fn until it succeeds, fails for good or attempts run out.
// fn must reuse the same idempotency key on every attempt.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if serr := r.sleep(ctx, r.backoff(attempt-1)); serr != nil {
				return err
			}
		}
		err = fn(ctx, attempt)
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

// backoff is BaseDelay * 2^attempt capped at MaxDelay, with jitter.
func (r *Retrier) backoff(attempt int) time.Duration {
	backoff := r.config.BaseDelay * time.Duration(1<<uint(attempt))
	if backoff > r.config.MaxDelay || backoff <= 0 {
		backoff = r.config.MaxDelay
	}

	jitterRange := float64(backoff) * r.config.JitterFactor
	backoff += time.Duration(rand.Float64()*2*jitterRange - jitterRange)
	if backoff < 0 {
		backoff = r.config.BaseDelay
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
