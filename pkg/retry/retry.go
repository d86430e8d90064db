package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  int           // retries after the first call; 0 means no retry
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on a single delay
	Multiplier   float64       // growth factor between delays
	Jitter       bool          // randomize each delay by ±25%
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Notify is called before each retry with the error and the upcoming delay.
type Notify func(err error, delay time.Duration)

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (c Config) backOff(ctx context.Context) backoff.BackOff {
	ebo := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(0),
	)
	if c.InitialDelay > 0 {
		ebo.InitialInterval = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		ebo.MaxInterval = c.MaxDelay
	}
	if c.Multiplier >= 1 {
		ebo.Multiplier = c.Multiplier
	}
	if c.Jitter {
		ebo.RandomizationFactor = 0.25
	} else {
		ebo.RandomizationFactor = 0
	}
	ebo.Reset()

	attempts := c.MaxAttempts
	if attempts < 0 {
		attempts = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(ebo, uint64(attempts)), ctx)
}

// Do calls op until it succeeds, returns a Permanent error, the attempts
// run out or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error, notify Notify) error {
	return backoff.RetryNotify(func() error {
		return op(ctx)
	}, cfg.backOff(ctx), backoff.Notify(notify))
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	return backoff.RetryNotifyWithData(func() (T, error) {
		return op(ctx)
	}, cfg.backOff(ctx), backoff.Notify(notify))
}
