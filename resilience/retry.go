package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kbukum/rediskit/errors"
)

// RetryConfig configures Retry. Zero fields take the defaults of
// DefaultRetryConfig.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// BackoffFactor multiplies the delay after every retry.
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	// Jitter randomizes each delay by up to this fraction (0.0 to 1.0).
	Jitter float64 `mapstructure:"jitter"`
	// RetryIf decides whether an error is worth another attempt.
	RetryIf func(error) bool `mapstructure:"-"`
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, backoff time.Duration) `mapstructure:"-"`
}

// DefaultRetryConfig retries retryable errors three times with exponential
// backoff starting at 50ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        RetryIfRetryable,
	}
}

// RetryIfRetryable retries AppErrors marked retryable, such as
// POOL_EXHAUSTED and CONNECTION_FAILED. Context errors and AppErrors that are
// not retryable stop immediately; any other error is retried.
func RetryIfRetryable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := errors.AsAppError(err); ok {
		return errors.IsRetryable(err)
	}
	return true
}

func (c *RetryConfig) applyDefaults() {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.RetryIf == nil {
		c.RetryIf = d.RetryIf
	}
}

// Retry calls fn until it succeeds, RetryIf rejects its error, attempts run
// out or ctx is done. It returns the last result and error. Redis commands
// are never retried by the client itself; callers opt in here.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cfg.applyDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) || attempt == cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// RetryFunc is Retry for functions that only return an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// calculateBackoff returns InitialBackoff * BackoffFactor^(attempt-1) with
// jitter, capped at MaxBackoff.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))

	if cfg.Jitter > 0 {
		spread := backoff * cfg.Jitter
		backoff += (rand.Float64()*2 - 1) * spread
	}
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if backoff < 0 {
		backoff = float64(cfg.InitialBackoff)
	}
	return time.Duration(backoff)
}
