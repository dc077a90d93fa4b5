package ports

import (
	"errors"
	"fmt"
	"time"
)

// Infrastructure errors shared by backends and middleware.
var (
	// ErrRateLimited indicates the backend or a local limiter refused the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates the backend is down or its circuit is open.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates a call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates the backend returned no usable content.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates the credentials were rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTokenLimitExceeded indicates the prompt or output exceeded the
	// model's context window.
	ErrTokenLimitExceeded = errors.New("token limit exceeded")

	// ErrCacheCorrupted indicates a cached entry could not be used.
	ErrCacheCorrupted = errors.New("cache corrupted")
)

// LLMError wraps an inference backend failure with the model and operation.
type LLMError struct {
	Model     string
	Operation string
	Err       error
	// RetryAfter is the backend's requested wait, when it sent one.
	RetryAfter *time.Duration
}

// Error implements the error interface for LLMError.
func (e *LLMError) Error() string {
	msg := fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError creates a new LLMError with the given details.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// CacheError represents a failed cache operation.
type CacheError struct {
	Key       string
	Operation string
	Err       error
}

// Error implements the error interface for CacheError.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError creates a new CacheError with the given details.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{Key: key, Operation: operation, Err: err}
}
