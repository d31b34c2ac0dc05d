// Package retry runs a fallible operation with exponential backoff.
//
// The caller decides which errors are worth another attempt through a
// predicate; every other error is returned immediately. A retryable failure
// is followed by a sleep, including the failure on the final attempt, so five
// attempts with a 1s initial delay and a backoff of 2 sleep 1, 2, 4, 8 and 16
// seconds in total.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Defaults used when a Config field is left zero.
const (
	DefaultAttempts = 5
	DefaultDelay    = time.Second
	DefaultBackoff  = 2.0
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config controls attempts and backoff.
type Config struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64

	// Sleep defaults to Sleep. Tests inject a recorder.
	Sleep  SleepFunc
	Logger *zap.Logger
	// OnRetry is invoked after every retryable failure, before sleeping.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns the standard 5 attempts, 1s, x2 policy.
func Default() Config {
	return Config{Attempts: DefaultAttempts, Delay: DefaultDelay, Backoff: DefaultBackoff}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Sleep blocks for d using a timer and returns early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, fn func(context.Context) error) error {
	_, err := DoValue(ctx, cfg, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	delay := cfg.Delay
	var last error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if retryable == nil || !retryable(err) {
			return zero, err
		}
		last = err

		cfg.Logger.Debug(fmt.Sprintf("%v. Retrying in %s.", err, delay),
			zap.Int("try_count", attempt),
			zap.Duration("delay", delay),
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		if serr := cfg.Sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry interrupted after %d attempts: %w", attempt, serr)
		}
		delay = time.Duration(float64(delay) * cfg.Backoff)
	}
	return zero, &ExhaustedError{Attempts: cfg.Attempts, Last: last}
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Backoff < 1 {
		c.Backoff = DefaultBackoff
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
