package docstore

import (
	"context"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RetryConfig defines retry behavior for transient store failures.
type RetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	Enabled:       true,
	MaxAttempts:   3,
	BaseDelay:     200 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
}

// Validate checks the configuration values.
func (c RetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.BaseDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxDelay, validation.Required, validation.Min(c.BaseDelay)),
		validation.Field(&c.BackoffFactor, validation.Required, validation.Min(1.0)),
	)
}

// Retryer executes store operations, retrying transient failures with
// capped geometric backoff. No jitter is applied; the delay before
// attempt n+1 is min(base * factor^(n-1), max).
type Retryer struct {
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a Retryer from cfg.
func NewRetryer(cfg RetryConfig) *Retryer {
	return &Retryer{cfg: cfg, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op, retrying transient failures. Failures whose Kind is in the
// non-retryable set are returned after the first attempt; everything else
// is retried up to MaxAttempts with geometric backoff.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if !r.cfg.Enabled {
		return op(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !KindOf(err).Retryable() {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		metricRetryAttempts.Inc()
		if err := r.sleep(ctx, r.Backoff(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// Backoff returns the delay applied after the given 1-based attempt.
func (r *Retryer) Backoff(attempt int) time.Duration {
	delay := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, r *Retryer, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
