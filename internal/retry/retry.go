// Package retry runs an operation again with exponential backoff when it
// fails with a transient error.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")

	// ErrNilClassifier is returned when WithRetryable is given a nil function.
	ErrNilClassifier = errors.New("retryable classifier must not be nil")
)

// Func is an operation that can be retried.
type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	retryable    func(error) bool
	onRetry      func(attempt int, err error)
}

// Option configures Do.
type Option func(*config) error

// Do runs fn until it succeeds, fails with an error the classifier does not
// accept, the context ends, or the attempts are used up. Without WithRetryable
// nothing is retried.
//
// Default schedule: 0, 10, 20, 40, 80 ms, each plus up to 30% jitter.
func Do(ctx context.Context, fn Func, options ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryable:    func(error) bool { return false },
	}
	for _, option := range options {
		if err := option(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only

			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.retryable(lastErr) {
			return lastErr
		}
		if cfg.onRetry != nil && attempt < cfg.maxAttempts-1 {
			cfg.onRetry(attempt+1, lastErr)
		}
	}

	return lastErr
}

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the delay before the first retry. Each further retry
// doubles it.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = delay
		return nil
	}
}

// WithJitterFactor sets how much random delay, as a fraction of the backoff,
// is added to each wait.
func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = factor
		return nil
	}
}

// WithRetryable sets the classifier deciding which errors are transient.
func WithRetryable(fn func(error) bool) Option {
	return func(c *config) error {
		if fn == nil {
			return ErrNilClassifier
		}
		c.retryable = fn
		return nil
	}
}

// WithOnRetry registers a hook called before every retry with the attempt
// number about to run and the error that caused it.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(c *config) error {
		c.onRetry = fn
		return nil
	}
}
