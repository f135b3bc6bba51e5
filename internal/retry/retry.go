// Package retry provides retry mechanisms with exponential backoff
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int              // Maximum number of attempts (0 = unlimited)
	InitialDelay    time.Duration    // Initial delay between retries
	MaxDelay        time.Duration    // Maximum delay between retries
	Multiplier      float64          // Backoff multiplier
	RandomizeFactor float64          // Jitter factor (0-1)
	RetryIf         func(error) bool // Decides whether an error is retryable
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    50 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}

// Operation represents a retryable operation
type Operation func(ctx context.Context) error

// Result contains the result of a retry operation
type Result struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// Retrier provides retry functionality
type Retrier struct {
	config Config
}

// New creates a new retrier with the given configuration
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.RandomizeFactor < 0 {
		c.RandomizeFactor = 0
	} else if c.RandomizeFactor > 1 {
		c.RandomizeFactor = 1
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	return &Retrier{config: c}
}

// Do executes op until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is cancelled.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{}
	delay := r.config.InitialDelay

	for attempt := 1; r.config.MaxAttempts == 0 || attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.Err = fmt.Errorf("context cancelled: %w", err)
			break
		}

		err := op(ctx)
		if err == nil {
			result.Err = nil
			break
		}
		result.Err = err

		if !r.config.RetryIf(err) {
			break
		}
		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(r.calculateDelay(delay))
		select {
		case <-timer.C:
			delay = r.nextDelay(delay)
		case <-ctx.Done():
			timer.Stop()
			result.Err = fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Duration = time.Since(start)
	return result
}

// calculateDelay adds jitter to the delay
func (r *Retrier) calculateDelay(delay time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 {
		return delay
	}

	delta := float64(delay) * r.config.RandomizeFactor
	minDelay := float64(delay) - delta
	maxDelay := float64(delay) + delta

	// #nosec G404 -- jitter does not need a secure source
	return time.Duration(minDelay + rand.Float64()*(maxDelay-minDelay))
}

// nextDelay calculates the next delay with exponential backoff
func (r *Retrier) nextDelay(currentDelay time.Duration) time.Duration {
	next := time.Duration(float64(currentDelay) * r.config.Multiplier)
	if next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}

// PermanentError represents a permanent error that should not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// DefaultRetryIf retries every error except permanent ones and context errors
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
