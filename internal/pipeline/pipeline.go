// Package pipeline runs the three recommendation stages against an
// unreliable inference backend.
//
// Stages run strictly in order: usage summary, plan scoring, narrative. Each
// stage wraps its inference call in the retry policy and, once retries are
// exhausted or the response fails parsing or validation, substitutes a
// deterministic fallback and records the failure in the result. A run fails
// outright only when no stage produced output, or when the caller cancels.
package pipeline

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-wattwise/internal/catalog"
	"github.com/ahrav/go-wattwise/internal/cost"
	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/parser"
	"github.com/ahrav/go-wattwise/internal/ports"
	"github.com/ahrav/go-wattwise/internal/retry"
	"github.com/ahrav/go-wattwise/internal/validation"
)

// MaxNarrativeConcurrency caps concurrent per-plan narrative calls.
const MaxNarrativeConcurrency = domain.MaxTopRecommendations

const tracerName = "github.com/ahrav/go-wattwise/internal/pipeline"

// Config tunes a Pipeline. The zero value of any field selects its default.
// The scoring tolerances are pointers because zero is a meaningful setting
// for them; nil selects the default.
type Config struct {
	// MaxAttempts bounds inference attempts per call.
	MaxAttempts int
	// Backoff is the wait between attempts.
	Backoff retry.BackoffFunc
	// InvalidIndexThreshold is the rejected-entry share that fails a scoring
	// response. Zero fails a response with any rejected entry.
	InvalidIndexThreshold *float64
	// MinPlansWarning is the survivor count below which scoring logs a
	// warning. Zero disables the warning.
	MinPlansWarning *int
	// MaxPromptPlans is the number of catalog plans shown to the scorer.
	MaxPromptPlans int
	// ParallelNarrative writes one narrative per top plan concurrently
	// instead of a single combined narrative.
	ParallelNarrative bool
	// NarrativeConcurrency bounds the concurrent narrative calls, at most
	// MaxNarrativeConcurrency.
	NarrativeConcurrency int
	// CompletionOptions are merged over each stage's default request options.
	CompletionOptions map[string]any
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	threshold, minPlans := parser.DefaultInvalidIndexThreshold, parser.DefaultMinPlansWarning
	return Config{
		MaxAttempts:           retry.DefaultMaxAttempts,
		Backoff:               retry.Linear(retry.DefaultBackoff),
		InvalidIndexThreshold: &threshold,
		MinPlansWarning:       &minPlans,
		MaxPromptPlans:        domain.MaxScoredPlans,
		NarrativeConcurrency:  MaxNarrativeConcurrency,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Backoff == nil {
		c.Backoff = d.Backoff
	}
	if c.InvalidIndexThreshold == nil || *c.InvalidIndexThreshold < 0 {
		c.InvalidIndexThreshold = d.InvalidIndexThreshold
	}
	if c.MinPlansWarning == nil || *c.MinPlansWarning < 0 {
		c.MinPlansWarning = d.MinPlansWarning
	}
	if c.MaxPromptPlans <= 0 {
		c.MaxPromptPlans = d.MaxPromptPlans
	}
	c.NarrativeConcurrency = min(max(c.NarrativeConcurrency, 1), MaxNarrativeConcurrency)
	return c
}

// Request options per stage. Only the usage summary is a single JSON object,
// so it alone asks the backend for JSON mode.
var stageOptions = map[domain.Stage]map[string]any{
	domain.StageUsageSummary: {"temperature": 0.1, "max_tokens": 512, "json_mode": true},
	domain.StagePlanScoring:  {"temperature": 0.2, "max_tokens": 2048},
	domain.StageNarrative:    {"temperature": 0.7, "max_tokens": 1500},
}

// Pipeline is safe for concurrent use; each Run owns its own result.
type Pipeline struct {
	client  ports.LLMClient
	catalog *catalog.Catalog
	scoring *parser.ScoringParser
	cfg     Config

	// invalidator is set when client caches responses.
	invalidator ports.ResponseInvalidator

	logger  *zap.Logger
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithClock sets the time source for timestamps and execution time.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRequestIDs sets the request ID generator.
func WithRequestIDs(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New creates a pipeline that scores plans from cat using client.
func New(client ports.LLMClient, cat *catalog.Catalog, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: inference client is required", domain.ErrInvalidConfiguration)
	}
	if cat == nil || cat.Len() == 0 {
		return nil, fmt.Errorf("%w: plan catalog is required", domain.ErrInvalidConfiguration)
	}

	p := &Pipeline{
		client:  client,
		catalog: cat,
		cfg:     DefaultConfig(),
		logger:  zap.NewNop(),
		metrics: ports.NopMetrics{},
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg = p.cfg.withDefaults()
	if inv, ok := client.(ports.ResponseInvalidator); ok {
		p.invalidator = inv
	}
	p.scoring = parser.NewScoringParser(cat,
		parser.WithInvalidThreshold(*p.cfg.InvalidIndexThreshold),
		parser.WithMinPlansWarning(*p.cfg.MinPlansWarning),
		parser.WithLogger(p.logger.Named("scoring")),
	)
	return p, nil
}

// Run produces recommendations for in.
//
// Invalid input is rejected with an error wrapping domain.ErrInvalidInput
// before any inference call. Stage failures never surface as errors: they
// appear in the result as degraded stages and errors[] entries. Run returns
// an error wrapping domain.ErrPipelineFailed, together with the result, only
// when no stage produced output. If ctx is canceled the partial result is
// returned with the context's error.
func (p *Pipeline) Run(ctx context.Context, in domain.StageInput) (*domain.PipelineResult, error) {
	if err := validation.StageInputContract.Check(in); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	start := p.now()
	r := newRun(p, in, start)
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("request_id", r.result.RequestID)))
	defer span.End()

	r.logger.Info("pipeline started",
		zap.Int("catalog_plans", p.catalog.Len()),
		zap.Bool("parallel_narrative", p.cfg.ParallelNarrative))

	err := r.execute(ctx)
	r.result.ExecutionTime = p.now().Sub(start).Milliseconds()

	status := runStatus(r.result, err)
	span.SetAttributes(attribute.String("status", status), attribute.Int64("execution_ms", r.result.ExecutionTime))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	labels := map[string]string{"status": status}
	p.metrics.RecordCounter("pipeline_runs_total", 1, labels)
	p.metrics.RecordLatency("pipeline_run_duration_seconds", p.now().Sub(start), labels)

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int64("execution_ms", r.result.ExecutionTime),
		zap.Int("errors", len(r.result.Errors)),
	}
	if err != nil {
		r.logger.Warn("pipeline finished without full output", append(fields, zap.Error(err))...)
		return r.result, err
	}
	r.logger.Info("pipeline finished", fields...)
	return r.result, nil
}

func runStatus(res *domain.PipelineResult, err error) string {
	switch {
	case err != nil && ctxErr(err):
		return "canceled"
	case err != nil:
		return "failed"
	case res.Degraded():
		return "degraded"
	default:
		return "success"
	}
}

// options returns the request options for a call made by stage.
func (p *Pipeline) options(stage domain.Stage) map[string]any {
	opts := maps.Clone(stageOptions[stage])
	maps.Copy(opts, p.cfg.CompletionOptions)
	return opts
}

func (p *Pipeline) policy(stage domain.Stage, logger *zap.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: p.cfg.MaxAttempts,
		Backoff:     p.cfg.Backoff,
		Stage:       stage,
		Logger:      logger,
	}
}

// currentAnnualCost resolves what the household pays today. Billed history
// and the current tariff come first; the summary's figure is the last resort.
func currentAnnualCost(in domain.StageInput, summary domain.UsageSummary) float64 {
	if c := cost.CurrentAnnualCost(in, 0); c > 0 {
		return c
	}
	return max(summary.AnnualCost, 0)
}
