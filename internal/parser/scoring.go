package parser

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ahrav/go-wattwise/internal/cost"
	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/sanitize"
	"github.com/ahrav/go-wattwise/internal/validation"
)

// Defaults for ScoringParser thresholds.
const (
	DefaultInvalidIndexThreshold = 0.5
	DefaultMinPlansWarning       = 5
)

const scoredPlansKey = "scoredPlans"

// PlanLookup is the read-only catalog view the parser reconciles against.
type PlanLookup interface {
	Lookup(id string) (domain.CatalogPlan, bool)
	Plans() []domain.CatalogPlan
}

// CostContext carries the figures used to price plans with the cost engine.
type CostContext struct {
	AnnualUsageKWh    float64
	CurrentAnnualCost float64
}

// ScoringParser parses plan-scoring responses. It is safe for concurrent use.
type ScoringParser struct {
	catalog PlanLookup
	// invalidThreshold is the share of rejected entries above which the
	// whole response is rejected.
	invalidThreshold float64
	// minPlansWarning is the survivor count below which a warning is logged.
	minPlansWarning int
	logger          *zap.Logger
}

// ScoringOption configures a ScoringParser.
type ScoringOption func(*ScoringParser)

// WithInvalidThreshold sets the rejected-entry share that fails a response.
func WithInvalidThreshold(share float64) ScoringOption {
	return func(p *ScoringParser) { p.invalidThreshold = share }
}

// WithMinPlansWarning sets the survivor count below which a warning is logged.
func WithMinPlansWarning(n int) ScoringOption {
	return func(p *ScoringParser) { p.minPlansWarning = n }
}

// WithLogger sets the parser's logger.
func WithLogger(l *zap.Logger) ScoringOption {
	return func(p *ScoringParser) { p.logger = l }
}

// NewScoringParser creates a parser reconciling against catalog.
func NewScoringParser(catalog PlanLookup, opts ...ScoringOption) *ScoringParser {
	p := &ScoringParser{
		catalog:          catalog,
		invalidThreshold: DefaultInvalidIndexThreshold,
		minPlansWarning:  DefaultMinPlansWarning,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// rejection records why one model entry was dropped.
type rejection struct {
	entry int
	err   error
}

// ParseIndexed parses a response in which the model referenced plans by the
// index they were shown under. Identity fields always come from indexed;
// the model contributes only its score and reasoning.
func (p *ScoringParser) ParseIndexed(raw string, indexed []domain.IndexedPlan, costs CostContext) (domain.PlanScoringOutput, error) {
	entries, err := decodeEntries(domain.StagePlanScoring, raw, scoredPlansKey)
	if err != nil {
		return domain.PlanScoringOutput{}, err
	}

	var (
		kept     []domain.ScoredPlan
		rejected []rejection
		seen     = make(map[int]struct{}, len(entries))
	)
	for i, e := range entries {
		idx, err := entryIndex(e, len(indexed))
		if err != nil {
			rejected = append(rejected, rejection{entry: i, err: err})
			continue
		}
		if _, dup := seen[idx]; dup {
			p.logger.Debug("duplicate scoring index ignored", zap.Int("index", idx))
			continue
		}
		seen[idx] = struct{}{}

		sp, err := p.scored(indexed[idx].Plan, e, costs)
		if err != nil {
			rejected = append(rejected, rejection{entry: i, err: err})
			continue
		}
		kept = append(kept, sp)
	}

	return p.finish(len(entries), kept, rejected)
}

// ParseDirect parses a response that names plans by planId, planName and
// supplier. Unknown IDs and identity mismatches are rejected; names and
// suppliers that differ only in embedded contract lengths are accepted.
func (p *ScoringParser) ParseDirect(raw string, costs CostContext) (domain.PlanScoringOutput, error) {
	entries, err := decodeEntries(domain.StagePlanScoring, raw, scoredPlansKey)
	if err != nil {
		return domain.PlanScoringOutput{}, err
	}

	var (
		kept     []domain.ScoredPlan
		rejected []rejection
		seen     = make(map[string]struct{}, len(entries))
	)
	for i, e := range entries {
		plan, err := p.reconcile(e)
		if err != nil {
			rejected = append(rejected, rejection{entry: i, err: err})
			continue
		}
		if _, dup := seen[plan.ID]; dup {
			p.logger.Debug("duplicate scored plan ignored", zap.String("plan_id", plan.ID))
			continue
		}
		seen[plan.ID] = struct{}{}

		sp, err := p.scored(plan, e, costs)
		if err != nil {
			rejected = append(rejected, rejection{entry: i, err: err})
			continue
		}
		kept = append(kept, sp)
	}

	return p.finish(len(entries), kept, rejected)
}

// reconcile checks an entry's identity fields against the catalog.
func (p *ScoringParser) reconcile(e map[string]any) (domain.CatalogPlan, error) {
	id := sanitize.String(e["planId"], 0)
	plan, ok := p.catalog.Lookup(id)
	if !ok {
		return domain.CatalogPlan{}, &domain.MismatchError{
			PlanID:  id,
			Field:   "planId",
			Got:     id,
			Closest: closestPlan(p.catalog.Plans(), id, false),
		}
	}

	if name := sanitize.String(e["planName"], 0); !identityMatches(plan.PlanName, name) {
		return domain.CatalogPlan{}, &domain.MismatchError{
			PlanID:   id,
			Field:    "planName",
			Expected: plan.PlanName,
			Got:      name,
			Closest:  closestPlan(p.catalog.Plans(), name, true),
		}
	}
	if supplier := sanitize.String(e["supplier"], 0); !identityMatches(plan.Supplier, supplier) {
		return domain.CatalogPlan{}, &domain.MismatchError{
			PlanID:   id,
			Field:    "supplier",
			Expected: plan.Supplier,
			Got:      supplier,
		}
	}
	return plan, nil
}

func entryIndex(e map[string]any, n int) (int, error) {
	raw, ok := e["index"]
	if !ok {
		return 0, fmt.Errorf("missing index")
	}
	f, ok := sanitize.Number(raw)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("non-numeric index %v", raw)
	}
	if f < 0 || f >= float64(n) {
		return 0, fmt.Errorf("index %v outside [0, %d)", raw, n)
	}
	return int(f), nil
}

// scored builds a ScoredPlan from catalog identity and the model's score.
// Costs come from the cost engine; the model's figures are used only for a
// plan the engine cannot price.
func (p *ScoringParser) scored(plan domain.CatalogPlan, e map[string]any, costs CostContext) (domain.ScoredPlan, error) {
	score, ok := sanitize.Int(e["score"])
	if !ok {
		return domain.ScoredPlan{}, fmt.Errorf("plan %s: missing or non-numeric score", plan.ID)
	}

	sp := domain.ScoredPlan{
		PlanID:    plan.ID,
		Supplier:  plan.Supplier,
		PlanName:  plan.PlanName,
		Score:     min(max(score, 0), 100),
		Reasoning: sanitize.String(e["reasoning"], domain.MaxReasoningLength),
	}

	est := cost.EstimatePlan(plan, costs.AnnualUsageKWh, costs.CurrentAnnualCost)
	if est.Err == nil {
		sp.EstimatedAnnualCost, sp.EstimatedSavings = est.AnnualCost, est.Savings
		sp.SavingsBreakdown = est.Breakdown
		return sp, nil
	}

	p.logger.Debug("cost engine could not price plan; using model figures",
		zap.String("plan_id", plan.ID), zap.Error(est.Err))
	if c, ok := sanitize.Number(e["estimatedAnnualCost"]); ok && c >= 0 {
		sp.EstimatedAnnualCost = c
		sp.EstimatedSavings = cost.Savings(costs.CurrentAnnualCost, c).Amount
	} else {
		sp.EstimatedAnnualCost = est.AnnualCost
	}
	return sp, nil
}

// finish applies the rejection threshold, orders survivors and checks the
// output contract.
func (p *ScoringParser) finish(total int, kept []domain.ScoredPlan, rejected []rejection) (domain.PlanScoringOutput, error) {
	for _, r := range rejected {
		p.logger.Warn("scoring entry rejected", zap.Int("entry", r.entry), zap.Error(r.err))
	}

	if total == 0 {
		verr := domain.NewValidationError("PlanScoringOutput")
		verr.AddFieldError(scoredPlansKey, "response contained no entries")
		return domain.PlanScoringOutput{}, verr
	}
	if share := float64(len(rejected)) / float64(total); share > p.invalidThreshold {
		verr := domain.NewValidationError("PlanScoringOutput")
		verr.AddFieldError(scoredPlansKey, fmt.Sprintf("%d of %d entries rejected (%.0f%% > %.0f%%)",
			len(rejected), total, share*100, p.invalidThreshold*100))
		for _, r := range rejected {
			verr.AddFieldError(fmt.Sprintf("%s[%d]", scoredPlansKey, r.entry), r.err.Error())
		}
		return domain.PlanScoringOutput{}, verr
	}

	SortScored(kept)
	out := domain.PlanScoringOutput{
		ScoredPlans:      kept[:min(len(kept), domain.MaxScoredPlans)],
		TotalPlansScored: len(kept),
	}
	if len(kept) < p.minPlansWarning {
		p.logger.Warn("few plans survived scoring validation",
			zap.Int("plans", len(kept)), zap.Int("minimum", p.minPlansWarning))
	}
	if err := validation.PlanScoring(out); err != nil {
		return domain.PlanScoringOutput{}, err
	}
	return out, nil
}

// SortScored orders plans by descending score, breaking ties by higher
// ETF-amortized savings and then plan ID.
func SortScored(plans []domain.ScoredPlan) {
	slices.SortStableFunc(plans, func(a, b domain.ScoredPlan) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		switch sa, sb := a.ComparableSavings(), b.ComparableSavings(); {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return strings.Compare(a.PlanID, b.PlanID)
	})
}
