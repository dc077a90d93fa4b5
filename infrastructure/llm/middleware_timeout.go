package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-wattwise/internal/ports"
)

type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds each request. A request that runs out of time
// while the caller's own context is still live fails with ports.ErrTimeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	response, tokensIn, tokensOut, err := t.next.DoRequest(reqCtx, prompt, opts)
	if err != nil && ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return "", 0, 0, fmt.Errorf("%w after %s: %w", ports.ErrTimeout, t.timeout, err)
	}
	return response, tokensIn, tokensOut, err
}

func (t *timeoutLLM) GetModel() string  { return t.next.GetModel() }
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
