// Package middleware provides the Prometheus implementation of
// ports.MetricsCollector used by the pipeline and the inference client.
package middleware

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-wattwise/internal/ports"
)

// Namespace prefixes every exported metric.
const Namespace = "wattwise"

// Histogram buckets for latency metrics, in seconds. Inference calls run
// from sub-second cache hits to tens of seconds.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}

// PrometheusMetrics implements ports.MetricsCollector. Vectors are created
// on first use of a metric name, with the label keys of that first call.
// Later calls with missing keys record them as "unknown"; extra keys are
// dropped.
type PrometheusMetrics struct {
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]vec[*prometheus.CounterVec]
	gauges     map[string]vec[*prometheus.GaugeVec]
	histograms map[string]vec[*prometheus.HistogramVec]
}

type vec[V any] struct {
	v    V
	keys []string
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers metrics with reg. A nil reg uses the
// default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		factory:    promauto.With(reg),
		counters:   make(map[string]vec[*prometheus.CounterVec]),
		gauges:     make(map[string]vec[*prometheus.GaugeVec]),
		histograms: make(map[string]vec[*prometheus.HistogramVec]),
	}
}

// RecordLatency observes duration in seconds in the histogram named
// operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter adds value to the counter named metric. Negative values are
// ignored.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	pm.mu.Lock()
	c, ok := pm.counters[metric]
	if !ok {
		keys := labelKeys(labels)
		c = vec[*prometheus.CounterVec]{
			v: pm.factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      metric,
				Help:      helpText(metric),
			}, keys),
			keys: keys,
		}
		pm.counters[metric] = c
	}
	pm.mu.Unlock()
	c.v.WithLabelValues(labelValues(c.keys, labels)...).Add(value)
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	g, ok := pm.gauges[metric]
	if !ok {
		keys := labelKeys(labels)
		g = vec[*prometheus.GaugeVec]{
			v: pm.factory.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      metric,
				Help:      helpText(metric),
			}, keys),
			keys: keys,
		}
		pm.gauges[metric] = g
	}
	pm.mu.Unlock()
	g.v.WithLabelValues(labelValues(g.keys, labels)...).Set(value)
}

// RecordHistogram observes value in the histogram named metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	h, ok := pm.histograms[metric]
	if !ok {
		keys := labelKeys(labels)
		h = vec[*prometheus.HistogramVec]{
			v: pm.factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      metric,
				Help:      helpText(metric),
				Buckets:   latencyBuckets,
			}, keys),
			keys: keys,
		}
		pm.histograms[metric] = h
	}
	pm.mu.Unlock()
	h.v.WithLabelValues(labelValues(h.keys, labels)...).Observe(value)
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelValues(keys []string, labels map[string]string) []string {
	values := make([]string, len(keys))
	for i, k := range keys {
		v, ok := labels[k]
		if !ok || v == "" {
			v = "unknown"
		}
		values[i] = v
	}
	return values
}

var knownHelp = map[string]string{
	"pipeline_run_duration_seconds":   "End-to-end recommendation pipeline latency.",
	"pipeline_runs_total":             "Pipeline runs by overall outcome.",
	"pipeline_stage_duration_seconds": "Latency of a single pipeline stage, including retries.",
	"pipeline_stage_outcomes_total":   "Stage completions by terminal status.",
	"pipeline_stage_attempts_total":   "Inference attempts made per stage.",
	"scoring_plans_dropped_total":     "Plans shown to the model that did not survive parsing.",
	"scoring_plans_scored":            "Plans in the most recent scoring output.",
	"llm_request_duration_seconds":    "Inference backend request latency.",
	"llm_requests_total":              "Inference backend requests by outcome.",
	"llm_tokens_total":                "Tokens consumed by direction.",
	"llm_circuit_rejections_total":    "Requests rejected by an open circuit breaker.",
	"llm_circuit_state":               "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
}

func helpText(metric string) string {
	if h, ok := knownHelp[metric]; ok {
		return h
	}
	return "Wattwise metric " + metric + "."
}
