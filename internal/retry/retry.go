// Package retry runs a stage's "call inference, then parse" unit with a
// bounded number of attempts.
//
// Only transient failures (network, timeouts, rate limiting, 5xx) are
// retried. Anything else, including parse and validation failures, returns
// immediately so the caller can fall back without burning attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// Defaults applied by DefaultPolicy.
const (
	DefaultMaxAttempts = 2
	DefaultBackoff     = 100 * time.Millisecond
)

// BackoffFunc returns the wait before the next attempt; attempt starts at 1
// for the wait after the first failure.
type BackoffFunc func(attempt int) time.Duration

// Linear waits base*attempt.
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration { return base * time.Duration(attempt) }
}

// Constant always waits d.
func Constant(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Policy bounds the attempts made for one stage.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Stage       domain.Stage
	Logger      *zap.Logger
}

// DefaultPolicy returns two attempts with a 100ms linear backoff.
func DefaultPolicy(stage domain.Stage) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Linear(DefaultBackoff),
		Stage:       stage,
	}
}

// ExhaustedError is returned when every attempt failed with a retriable error.
type ExhaustedError struct {
	Stage    domain.Stage
	Attempts int
	Err      error
}

// Error implements the error interface for ExhaustedError.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, returns a non-retriable error, the attempts
// run out or ctx is done. fn receives the 1-based attempt number.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := max(p.MaxAttempts, 1)
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("stage %s: %w", p.Stage, ctxErr)
		}
		if !IsRetriableError(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		logger.Info("retrying stage after transient error",
			zap.String("stage", string(p.Stage)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		if err := sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("stage %s: %w", p.Stage, err)
		}
	}

	return zero, &ExhaustedError{Stage: p.Stage, Attempts: maxAttempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var retriablePatterns = []string{
	"network", "connection refused", "connection reset", "broken pipe", "no such host",
	"econnreset", "econnrefused", "etimedout", "unexpected eof",
	"timeout", "timed out", "deadline exceeded",
	"429", "rate limit", "too many requests",
	"500", "502", "503", "504",
	"internal server error", "bad gateway", "service unavailable", "gateway timeout",
	"temporary failure", "temporarily unavailable", "overloaded",
}

// IsRetriableError reports whether err looks transient. Errors exposing
// IsRetryable() decide for themselves; pipeline parse and validation errors
// are never retriable; otherwise the message is matched against known
// transient failure phrases.
func IsRetriableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var (
		parseErr    *domain.ParseError
		validErr    *domain.ValidationError
		mismatchErr *domain.MismatchError
		mappingErr  *domain.MappingError
	)
	if errors.As(err, &parseErr) || errors.As(err, &validErr) ||
		errors.As(err, &mismatchErr) || errors.As(err, &mappingErr) {
		return false
	}

	var typed interface{ IsRetryable() bool }
	if errors.As(err, &typed) && typed.IsRetryable() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retriablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
