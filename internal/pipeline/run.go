package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/fallback"
	"github.com/ahrav/go-wattwise/internal/parser"
	"github.com/ahrav/go-wattwise/internal/prompt"
	"github.com/ahrav/go-wattwise/internal/retry"
	"github.com/ahrav/go-wattwise/internal/sanitize"
	"github.com/ahrav/go-wattwise/internal/validation"
)

// run is the state of one Run call.
type run struct {
	p      *Pipeline
	in     domain.StageInput
	logger *zap.Logger

	// mu guards result and partial, which narrative workers also write.
	mu      sync.Mutex
	result  *domain.PipelineResult
	partial map[domain.Stage]bool
}

func newRun(p *Pipeline, in domain.StageInput, start time.Time) *run {
	res := &domain.PipelineResult{
		RequestID: p.newID(),
		Stages:    make(map[domain.Stage]domain.StageStatus, len(domain.Stages)),
		Timestamp: start,
		Errors:    []domain.StageError{},
	}
	for _, s := range domain.Stages {
		res.Stages[s] = domain.StatusPending
	}
	return &run{
		p:       p,
		in:      in,
		logger:  p.logger.With(zap.String("request_id", res.RequestID)),
		result:  res,
		partial: make(map[domain.Stage]bool),
	}
}

// stage describes how one stage calls the backend, degrades and validates.
type stage[T any] struct {
	name domain.Stage
	// prepErr is a failure building the prompt; inference is skipped and the
	// stage goes straight to its fallback.
	prepErr  error
	policy   retry.Policy
	attempt  func(ctx context.Context) (T, error)
	fallback func() T
	contract validation.Contract[T]
}

// execute runs the stages in order, skipping every stage after one that
// produced no output.
func (r *run) execute(ctx context.Context) error {
	in := r.in

	usage := completer(r, domain.StageUsageSummary, parser.ParseUsageSummary)
	usagePrompt, err := prompt.UsageSummary(in)
	summary, status, err := runStage(ctx, r, stage[domain.UsageSummary]{
		name:     domain.StageUsageSummary,
		prepErr:  err,
		policy:   r.p.policy(domain.StageUsageSummary, r.logger),
		attempt:  func(ctx context.Context) (domain.UsageSummary, error) { return usage(ctx, usagePrompt) },
		fallback: func() domain.UsageSummary { return fallback.UsageSummary(in) },
		contract: validation.UsageSummaryContract,
	})
	if err != nil {
		return err
	}
	if !status.HasOutput() {
		return r.skipRest(domain.StageUsageSummary)
	}
	r.result.UsageSummary = &summary

	annualCost := currentAnnualCost(in, summary)
	// Plans are priced on metered usage, never on the model's restatement of it.
	pricing := summary
	pricing.TotalAnnualUsage = in.TotalUsage()
	costs := parser.CostContext{AnnualUsageKWh: pricing.TotalAnnualUsage, CurrentAnnualCost: annualCost}

	scoringPrompt, err := prompt.Scoring(in, summary, annualCost, r.p.catalog.Plans(), r.p.cfg.MaxPromptPlans)
	score := completer(r, domain.StagePlanScoring, func(raw string) (domain.PlanScoringOutput, error) {
		return r.p.scoring.ParseIndexed(raw, scoringPrompt.IndexedPlans, costs)
	})
	scoring, status, err := runStage(ctx, r, stage[domain.PlanScoringOutput]{
		name:    domain.StagePlanScoring,
		prepErr: err,
		policy:  r.p.policy(domain.StagePlanScoring, r.logger),
		attempt: func(ctx context.Context) (domain.PlanScoringOutput, error) {
			return score(ctx, scoringPrompt.Prompt)
		},
		fallback: func() domain.PlanScoringOutput {
			eligible := prompt.EligiblePlans(r.p.catalog.Plans(), in.Preferences)
			if len(eligible) == 0 {
				// No plan fits the contract limit; rank the whole catalog.
				eligible = r.p.catalog.Plans()
			}
			return fallback.PlanScoring(eligible, pricing, annualCost)
		},
		contract: validation.PlanScoringContract,
	})
	if err != nil {
		return err
	}
	if !status.HasOutput() {
		return r.skipRest(domain.StagePlanScoring)
	}
	r.result.PlanScoring = &scoring
	r.recordScoring(status, len(scoringPrompt.IndexedPlans), scoring)

	top := scoring.ScoredPlans[:min(len(scoring.ScoredPlans), domain.MaxTopRecommendations)]
	narrative, status, err := runStage(ctx, r, r.narrativeStage(summary, annualCost, top))
	if err != nil {
		return err
	}
	if status.HasOutput() {
		r.result.Narrative = &narrative
	}
	return nil
}

func (r *run) narrativeStage(summary domain.UsageSummary, annualCost float64, top []domain.ScoredPlan) stage[domain.NarrativeOutput] {
	s := stage[domain.NarrativeOutput]{
		name:     domain.StageNarrative,
		policy:   r.p.policy(domain.StageNarrative, r.logger),
		fallback: func() domain.NarrativeOutput { return fallback.Narrative(top, summary) },
		contract: validation.NarrativeContract,
	}

	if r.p.cfg.ParallelNarrative {
		plans, err := prompt.Enrich(top, r.p.catalog)
		s.prepErr = err
		// Each plan's call carries the retry policy itself.
		s.policy.MaxAttempts = 1
		s.attempt = func(ctx context.Context) (domain.NarrativeOutput, error) {
			return r.narrateConcurrently(ctx, summary, annualCost, plans)
		}
		return s
	}

	ids := make([]string, len(top))
	for i, p := range top {
		ids[i] = p.PlanID
	}
	text, err := prompt.Narrative(r.in, summary, annualCost, top, r.p.catalog)
	s.prepErr = err
	narrate := completer(r, domain.StageNarrative, func(raw string) (domain.NarrativeOutput, error) {
		return parser.ParseNarrative(raw, ids)
	})
	s.attempt = func(ctx context.Context) (domain.NarrativeOutput, error) { return narrate(ctx, text) }
	return s
}

// narrateConcurrently writes one rationale per plan with at most
// NarrativeConcurrency calls in flight. A plan whose call fails gets its
// fallback rationale and marks the stage degraded; the stage fails only when
// every plan fails.
func (r *run) narrateConcurrently(ctx context.Context, summary domain.UsageSummary, annualCost float64,
	plans []prompt.EnrichedPlan) (domain.NarrativeOutput, error) {
	recs := make([]domain.NarrativeRecommendation, len(plans))
	failed := make([]error, len(plans))
	policy := r.p.policy(domain.StageNarrative, r.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.p.cfg.NarrativeConcurrency)
	for i, plan := range plans {
		g.Go(func() error {
			ids := []string{plan.Plan.ID}
			narrate := completer(r, domain.StageNarrative, func(raw string) (domain.NarrativeOutput, error) {
				return parser.ParseNarrative(raw, ids)
			})
			text, err := prompt.PlanNarrative(summary, annualCost, plan)
			if err == nil {
				var out domain.NarrativeOutput
				out, err = retry.Do(gctx, policy, func(ctx context.Context, _ int) (domain.NarrativeOutput, error) {
					return narrate(ctx, text)
				})
				if err == nil {
					recs[i] = out.TopRecommendations[0]
					return nil
				}
			}
			if cerr := gctx.Err(); cerr != nil {
				return cerr
			}
			failed[i] = fmt.Errorf("plan %s: %w", plan.Plan.ID, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.NarrativeOutput{}, err
	}

	var (
		scored  = make([]domain.ScoredPlan, len(plans))
		nFailed int
	)
	for i, p := range plans {
		scored[i] = p.Scored
		if failed[i] != nil {
			nFailed++
		}
	}
	if nFailed == len(plans) {
		return domain.NarrativeOutput{}, errors.Join(failed...)
	}

	out := domain.NarrativeOutput{TopRecommendations: recs}
	if nFailed > 0 {
		fb := fallback.Narrative(scored, summary)
		for i, err := range failed {
			if err == nil {
				continue
			}
			recs[i] = fb.TopRecommendations[i]
			r.degrade(domain.StageNarrative, err)
		}
		out.Fallback = true
	}

	rationales := make([]string, len(recs))
	for i, rec := range recs {
		rationales[i] = rec.Rationale
	}
	out.Explanation = sanitize.Truncate(strings.Join(rationales, "\n\n"), domain.MaxExplanationLength)
	return out, nil
}

// completer returns a function that calls the backend with stage's options
// and parses the reply with parse.
func completer[T any](r *run, stage domain.Stage, parse func(raw string) (T, error)) func(ctx context.Context, text string) (T, error) {
	return func(ctx context.Context, text string) (T, error) {
		r.countAttempt(stage)
		opts := r.p.options(stage)
		raw, err := r.p.client.Complete(ctx, text, opts)
		if err != nil {
			var zero T
			return zero, err
		}
		out, err := parse(raw)
		if err != nil && r.p.invalidator != nil {
			// A rejected reply must not be replayed from the cache.
			if ierr := r.p.invalidator.Invalidate(ctx, text, opts); ierr != nil {
				r.logger.Warn("failed to evict rejected response",
					zap.String("stage", string(stage)), zap.Error(ierr))
			}
		}
		return out, err
	}
}

// runStage drives one stage through its state machine. The returned error
// is non-nil only when ctx ended the run.
func runStage[T any](ctx context.Context, r *run, s stage[T]) (T, domain.StageStatus, error) {
	var zero T
	start := r.p.now()
	r.setStatus(s.name, domain.StatusRunning)
	ctx, span := r.p.tracer.Start(ctx, "pipeline."+string(s.name),
		trace.WithAttributes(attribute.String("stage", string(s.name))))
	defer span.End()
	logger := r.logger.With(zap.String("stage", string(s.name)))

	out, err := zero, s.prepErr
	if err == nil {
		out, err = retry.Do(ctx, s.policy, func(ctx context.Context, _ int) (T, error) {
			v, err := s.attempt(ctx)
			if err != nil {
				return zero, err
			}
			return v, s.contract.Check(v)
		})
	}

	status := domain.StatusSucceeded
	switch {
	case err != nil && ctx.Err() != nil:
		r.finishStage(s.name, domain.StatusFatal, start, span, err)
		return zero, domain.StatusFatal, fmt.Errorf("pipeline canceled during %s: %w", s.name, ctx.Err())

	case err != nil:
		logger.Warn("stage falling back to deterministic output", zap.Error(err))
		r.recordError(s.name, err)
		out = s.fallback()
		if ferr := s.contract.Check(out); ferr != nil {
			logger.Error("stage fallback produced invalid output", zap.Error(ferr))
			r.recordError(s.name, fmt.Errorf("fallback rejected: %w", ferr))
			out, status, err = zero, domain.StatusFatal, ferr
		} else {
			status, err = domain.StatusDegraded, nil
		}

	case r.isPartial(s.name):
		status = domain.StatusDegraded
	}

	r.finishStage(s.name, status, start, span, err)
	logger.Debug("stage finished", zap.String("status", string(status)))
	return out, status, nil
}

// skipRest marks every stage after failed as skipped. It reports
// domain.ErrPipelineFailed when no stage produced output.
func (r *run) skipRest(failed domain.Stage) error {
	after := false
	for _, s := range domain.Stages {
		if after {
			r.setStatus(s, domain.StatusSkipped)
			r.p.metrics.RecordCounter("pipeline_stage_outcomes_total", 1,
				map[string]string{"stage": string(s), "status": string(domain.StatusSkipped)})
		}
		after = after || s == failed
	}

	for _, st := range r.result.Stages {
		if st.HasOutput() {
			return nil
		}
	}
	return fmt.Errorf("%w: %s failed with no fallback", domain.ErrPipelineFailed, failed)
}

func (r *run) recordScoring(status domain.StageStatus, shown int, out domain.PlanScoringOutput) {
	r.p.metrics.RecordGauge("scoring_plans_scored", float64(len(out.ScoredPlans)), nil)
	if status != domain.StatusSucceeded {
		return
	}
	if dropped := shown - out.TotalPlansScored; dropped > 0 {
		r.p.metrics.RecordCounter("scoring_plans_dropped_total", float64(dropped), nil)
	}
}

func (r *run) setStatus(s domain.Stage, st domain.StageStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Stages[s] = st
}

func (r *run) recordError(s domain.Stage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Errors = append(r.result.Errors, domain.StageError{
		Stage:     s,
		Message:   err.Error(),
		Timestamp: r.p.now(),
	})
}

// degrade records a partial failure inside a stage that still succeeded.
func (r *run) degrade(s domain.Stage, err error) {
	r.recordError(s, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial[s] = true
}

func (r *run) isPartial(s domain.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partial[s]
}

func (r *run) countAttempt(s domain.Stage) {
	r.p.metrics.RecordCounter("pipeline_stage_attempts_total", 1, map[string]string{"stage": string(s)})
}

func (r *run) finishStage(s domain.Stage, st domain.StageStatus, start time.Time, span trace.Span, err error) {
	r.setStatus(s, st)
	span.SetAttributes(attribute.String("status", string(st)))
	if err != nil {
		span.RecordError(err)
	}
	if st == domain.StatusFatal {
		span.SetStatus(codes.Error, string(st))
	}
	labels := map[string]string{"stage": string(s), "status": string(st)}
	r.p.metrics.RecordLatency("pipeline_stage_duration_seconds", r.p.now().Sub(start), labels)
	r.p.metrics.RecordCounter("pipeline_stage_outcomes_total", 1, labels)
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
