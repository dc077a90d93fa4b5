// Package ports defines the interfaces between the recommendation pipeline
// and the infrastructure it runs on: the inference backend, the response
// cache and metrics collection.
package ports

import (
	"context"
	"time"
)

// LLMClient is the inference backend. The pipeline treats it as unreliable:
// calls may time out, be rate limited or return malformed text.
type LLMClient interface {
	// Complete sends prompt to the model and returns the generated text.
	//
	// Recognized options:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "model": string, overriding the client's default model
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier used for logging and cache keys.
	GetModel() string
}

// ResponseInvalidator is implemented by clients that cache responses.
// Invalidate drops the cached reply for a request so the next identical
// request reaches the backend.
type ResponseInvalidator interface {
	Invalidate(ctx context.Context, prompt string, options map[string]any) error
}

// CacheStore caches completed inference responses.
type CacheStore interface {
	// Get returns the cached value and true, or "" and false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A zero expiration means no expiry.
	Set(ctx context.Context, key, value string, expiration time.Duration) error

	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MetricsCollector records operational metrics. Label keys must be stable
// per metric name.
type MetricsCollector interface {
	// RecordLatency records how long an operation took.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter adds value to a counter.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets a gauge.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram observes value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NopMetrics discards every metric.
type NopMetrics struct{}

func (NopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (NopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (NopMetrics) RecordHistogram(string, float64, map[string]string)     {}
