package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLLMError covers message formatting, unwrapping and retry classification.
func TestLLMError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewLLMError("gpt-4o", "Complete", ErrTokenLimitExceeded)

		assert.Equal(t, "LLM error: model=gpt-4o, operation=Complete, err=token limit exceeded", err.Error())
		assert.True(t, errors.Is(err, ErrTokenLimitExceeded))
	})

	t.Run("with retry after", func(t *testing.T) {
		retryAfter := 30 * time.Second
		err := &LLMError{Model: "claude", Operation: "Complete", Err: ErrRateLimited, RetryAfter: &retryAfter}

		assert.Contains(t, err.Error(), "retry_after=30s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		for _, base := range []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout} {
			wrapped := fmt.Errorf("upstream: %w", base)
			assert.True(t, NewLLMError("m", "Complete", wrapped).IsRetryable(), "%v should be retryable", base)
		}
		for _, base := range []error{ErrTokenLimitExceeded, ErrInvalidResponse, ErrAuthenticationFailed} {
			assert.False(t, NewLLMError("m", "Complete", base).IsRetryable(), "%v should not be retryable", base)
		}
	})
}

func TestCacheError(t *testing.T) {
	err := NewCacheError("k1", "Get", ErrCacheCorrupted)

	assert.Equal(t, "cache error: operation=Get, key=k1, err=cache corrupted", err.Error())
	assert.True(t, errors.Is(err, ErrCacheCorrupted))
}
