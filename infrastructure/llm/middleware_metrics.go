package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-wattwise/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricLLMLatency  = "llm_request_duration_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, request outcome and token usage for
// every request.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	if collector == nil {
		collector = ports.NopMetrics{}
	}
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"model":  m.next.GetModel(),
		"status": requestStatus(err),
	}
	m.collector.RecordLatency(MetricLLMLatency, time.Since(start), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)

	if err == nil {
		model := labels["model"]
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensIn), map[string]string{"model": model, "direction": "input"})
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensOut), map[string]string{"model": model, "direction": "output"})
	}
	return response, tokensIn, tokensOut, err
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func (m *metricsLLM) GetModel() string      { return m.next.GetModel() }
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
