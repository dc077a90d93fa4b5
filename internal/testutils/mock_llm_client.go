// Package testutils provides a scripted inference backend and request
// fixtures for pipeline tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-wattwise/internal/ports"
)

// Prompt fragments that identify each stage's prompt.
const (
	PatternUsageSummary  = "Summarize twelve months"
	PatternScoring       = "Score each candidate plan"
	PatternNarrative     = "Use exactly this layout"
	PatternPlanNarrative = "write one paragraph of three to five sentences"
)

// Reply is one scripted answer. A non-nil Err is returned instead of Text.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration
}

type script struct {
	pattern string
	replies []Reply
	next    int
	calls   int
}

// MockLLMClient is a concurrency-safe ports.LLMClient whose answers are
// scripted per prompt fragment. Each call uses the first script whose
// pattern occurs in the prompt and consumes its next reply; the last reply
// repeats once the script is exhausted.
type MockLLMClient struct {
	mu      sync.Mutex
	model   string
	scripts []*script
	prompts []string
	options []map[string]any
}

var _ ports.LLMClient = (*MockLLMClient)(nil)

// NewMockLLMClient returns a mock with no scripts.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{model: model}
}

// Script registers replies for prompts containing pattern. Registering the
// same pattern again replaces its replies. The empty pattern matches every
// prompt and is best registered last.
func (m *MockLLMClient) Script(pattern string, replies ...Reply) *MockLLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scripts {
		if s.pattern == pattern {
			s.replies, s.next = replies, 0
			return m
		}
	}
	m.scripts = append(m.scripts, &script{pattern: pattern, replies: replies})
	return m
}

// Respond scripts a single successful reply.
func (m *MockLLMClient) Respond(pattern, text string) *MockLLMClient {
	return m.Script(pattern, Reply{Text: text})
}

// Fail scripts a single failing reply.
func (m *MockLLMClient) Fail(pattern string, err error) *MockLLMClient {
	return m.Script(pattern, Reply{Err: err})
}

// Complete returns the next scripted reply for prompt.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, options)
	var (
		reply Reply
		found bool
	)
	for _, s := range m.scripts {
		if !strings.Contains(prompt, s.pattern) || len(s.replies) == 0 {
			continue
		}
		reply = s.replies[min(s.next, len(s.replies)-1)]
		s.next++
		s.calls++
		found = true
		break
	}
	m.mu.Unlock()

	if !found {
		return "", fmt.Errorf("mock: no scripted reply for prompt %q", truncate(prompt, 60))
	}
	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

// EstimateTokens assumes about four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// Calls returns how many calls matched pattern's script.
func (m *MockLLMClient) Calls(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scripts {
		if s.pattern == pattern {
			return s.calls
		}
	}
	return 0
}

// TotalCalls returns the number of Complete calls, matched or not.
func (m *MockLLMClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Options returns a copy of the options passed with each call.
func (m *MockLLMClient) Options() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.options...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
