package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scrapix/pkg/config"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
)

// Operation is one attempt at something that may fail transiently.
type Operation func(ctx context.Context) error

// OperationWithResult is an attempt that also yields a value.
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config controls how Do retries.
type Config struct {
	// MaxAttempts counts the first try. Zero means unlimited.
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether err is worth another attempt.
	RetryIf func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig retries three times with exponential backoff.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
	}
}

// FromConfig translates the retry section of the config file. A disabled
// section yields a single attempt.
func FromConfig(cfg config.RetryConfig, log logger.Logger) *Config {
	if !cfg.Enabled {
		return &Config{MaxAttempts: 1, Backoff: &ConstantBackoff{}, RetryIf: DefaultRetryIf, Logger: log}
	}
	return &Config{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.Multiplier,
			JitterFactor: cfg.JitterFactor,
		},
		RetryIf: DefaultRetryIf,
		Logger:  log,
	}
}

// DefaultRetryIf retries typed errors whose type is transient, never
// retries context errors, and retries anything else.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	return true
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx ends.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.WithError(lastErr).DebugWithFields("Retry attempts exhausted", map[string]interface{}{
					"attempts": cfg.MaxAttempts,
				})
			}
			if cfg.MaxAttempts == 1 {
				return lastErr
			}
			return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("Operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt == cfg.MaxAttempts {
			continue
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.WithError(err).WarnWithFields("Retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)
	return result, err
}
