package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/Sternrassler/biofetch/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// RetryOn lists the error classes that are retried.
	RetryOn []ErrorClass

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Backoff is the sleep before the first retry.
	Backoff time.Duration

	// MaxBackoff caps the sleep between attempts (0 = no cap).
	MaxBackoff time.Duration

	// Multiplier grows the backoff after every retry. Values <= 1 keep it fixed.
	Multiplier float64

	// Jitter randomizes each sleep by ±Jitter (fraction of the backoff).
	Jitter float64
}

// DefaultRetryConfig returns the bulk-data API convention: a single retry on
// 429 after a fixed five second sleep.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		RetryOn:    []ErrorClass{ErrorClassRateLimit},
		MaxRetries: 1,
		Backoff:    5 * time.Second,
		Multiplier: 1,
	}
}

// NoRetry returns a configuration that surfaces the first failure.
func NoRetry() RetryConfig {
	return RetryConfig{}
}

// Validate checks the configuration for impossible values.
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", r.MaxRetries)
	}
	if r.Backoff < 0 || r.MaxBackoff < 0 {
		return fmt.Errorf("backoff must be >= 0")
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1) (got %v)", r.Jitter)
	}
	return nil
}

// shouldRetry reports whether failures of class are retried.
func (r RetryConfig) shouldRetry(class ErrorClass) bool {
	return class != "" && slices.Contains(r.RetryOn, class)
}

// backoffFor returns the sleep before retry n (1-based), without jitter.
func (r RetryConfig) backoffFor(n int) time.Duration {
	backoff := r.Backoff
	for i := 1; i < n && r.Multiplier > 1; i++ {
		backoff = time.Duration(float64(backoff) * r.Multiplier)
		if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
		return r.MaxBackoff
	}
	return backoff
}

func (r RetryConfig) jittered(d time.Duration) time.Duration {
	if r.Jitter <= 0 || d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 - r.Jitter + rand.Float64()*2*r.Jitter))
}

// attemptFunc performs one attempt. A failed attempt returns its error class,
// which decides whether it is retried.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryWithBackoff runs fn until it succeeds, fails with a class outside
// RetryOn, or the retry budget is spent. Sleeps go through clock and honour
// ctx. It returns the number of attempts made.
func retryWithBackoff(ctx context.Context, clock ratelimit.Clock, cfg RetryConfig, logger zerolog.Logger, fn attemptFunc) (int, error) {
	for attempt := 1; ; attempt++ {
		class, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Debug().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		if !cfg.shouldRetry(class) {
			return attempt, err
		}

		if attempt > cfg.MaxRetries {
			retryExhaustedTotal.WithLabelValues(string(class)).Inc()
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempts", attempt).
				Msg("Retry attempts exhausted")
			return attempt, markExhausted(err, attempt)
		}

		backoff := cfg.jittered(cfg.backoffFor(attempt))
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		if err := clock.Sleep(ctx, backoff); err != nil {
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return attempt, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}
}

// markExhausted records on err that at least one retry happened.
func markExhausted(err error, attempts int) error {
	if attempts <= 1 {
		return err
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Err == nil {
			httpErr.Err = ErrRetryExhausted
		}
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
}
