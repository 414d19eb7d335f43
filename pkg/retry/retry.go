// Package retry wraps retry-go with the two policies this service uses:
// exponential backoff for infrastructure calls and fixed-delay for
// postback delivery, where the merchant contract specifies a constant
// interval between attempts.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds a retry policy.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig is the backoff policy for infrastructure calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Fixed returns a constant-interval policy: maxAttempts tries, delay
// between each.
func Fixed(maxAttempts uint, delay time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
	}
}

func (cfg Config) delayType() retry.DelayTypeFunc {
	if cfg.Multiplier <= 1.0 {
		return retry.FixedDelay
	}
	return retry.BackOffDelay
}

// Do executes fn under the policy, returning the last error on
// exhaustion.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(cfg.delayType()),
		retry.LastErrorOnly(true),
	)
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
