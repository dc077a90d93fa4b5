package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/ports"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 2, Backoff: Constant(time.Millisecond), Stage: domain.StagePlanScoring}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(), func(_ context.Context, attempt int) (string, error) {
		calls++
		assert.Equal(t, 1, attempt)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(), func(context.Context, int) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("upstream returned 503 service unavailable")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	transient := errors.New("dial tcp: connection refused")
	_, err := Do(context.Background(), fastPolicy(), func(context.Context, int) (int, error) {
		calls++
		return 0, transient
	})

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, domain.StagePlanScoring, exhausted.Stage)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 2, calls)
}

func TestDo_NonRetriableReturnsImmediately(t *testing.T) {
	calls := 0
	parseErr := domain.NewParseError(domain.StageUsageSummary, "malformed JSON", "{", nil)
	_, err := Do(context.Background(), fastPolicy(), func(context.Context, int) (int, error) {
		calls++
		return 0, parseErr
	})
	assert.Same(t, parseErr, err)
	assert.Equal(t, 1, calls, "non-retriable errors must not consume attempts")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Backoff: Constant(time.Hour), Stage: domain.StageNarrative}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(context.Context, int) (int, error) {
			calls++
			return 0, errors.New("request timeout")
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls, "no retry is scheduled after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), Policy{}, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("timeout")
	})
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	lin := Linear(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, lin(1))
	assert.Equal(t, 300*time.Millisecond, lin(3))
	assert.Equal(t, 5*time.Second, Constant(5*time.Second)(9))

	p := DefaultPolicy(domain.StageUsageSummary)
	assert.Equal(t, 2, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "network", err: errors.New("network is unreachable"), want: true},
		{name: "reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "timeout", err: errors.New("request Timeout"), want: true},
		{name: "exceeded timeout", err: errors.New("exceeded the 30s timeout"), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "429", err: errors.New("status 429"), want: true},
		{name: "500", err: errors.New("HTTP 500"), want: true},
		{name: "502", err: errors.New("502 Bad Gateway"), want: true},
		{name: "typed retryable", err: ports.NewLLMError("m", "Complete", ports.ErrRateLimited), want: true},
		{name: "wrapped typed", err: fmt.Errorf("stage: %w", ports.NewLLMError("m", "Complete", ports.ErrTimeout)), want: true},
		{name: "auth", err: ports.NewLLMError("m", "Complete", ports.ErrAuthenticationFailed), want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("invalid api key"), want: false},
		{name: "parse", err: domain.NewParseError(domain.StageNarrative, "too short", "", nil), want: false},
		{name: "validation with digits", err: &domain.ValidationError{Entity: "x", Errors: []string{"reasoning: must have at most 500 characters"}}, want: false},
		{name: "mismatch", err: &domain.MismatchError{PlanID: "p", Field: "planId"}, want: false},
		{name: "mapping", err: &domain.MappingError{Reason: "timeout"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetriableError(tt.err))
		})
	}
}
