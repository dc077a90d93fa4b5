// Package fallback builds deterministic stage outputs used when inference
// fails or its output is rejected. Every output is flagged Fallback and
// satisfies the same contract as a model-produced one.
package fallback

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ahrav/go-wattwise/internal/cost"
	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/sanitize"
)

// Coefficient-of-variation thresholds for usage classification.
const (
	HighVarianceCoV = 0.3
	SeasonalCoV     = 0.2
)

// MaxScoredPlans is the number of catalog plans the scoring fallback ranks.
const MaxScoredPlans = 10

// NeutralScore is assigned to every plan ranked by the scoring fallback.
const NeutralScore = 50

// Bounds of a valid usage summary.
const (
	minMonthlyUsage = 1
	maxMonthlyUsage = 10000
	minAnnualUsage  = 1
	maxAnnualUsage  = 120000
)

// UsageSummary derives the first stage's output from the raw monthly records.
func UsageSummary(in domain.StageInput) domain.UsageSummary {
	total := in.TotalUsage()
	n := len(in.UsageData)

	var mean float64
	if n > 0 {
		mean = total / float64(n)
	}

	peak := "Unknown"
	peakUsage := math.Inf(-1)
	for _, m := range in.UsageData {
		if m.Usage > peakUsage {
			peak, peakUsage = m.Month, m.Usage
		}
	}
	if strings.TrimSpace(peak) == "" {
		peak = "Unknown"
	}

	return domain.UsageSummary{
		AverageMonthlyUsage: round(clamp(mean, minMonthlyUsage, maxMonthlyUsage), 1),
		PeakUsageMonth:      peak,
		TotalAnnualUsage:    round(clamp(total, minAnnualUsage, maxAnnualUsage), 1),
		UsagePattern:        Classify(in.UsageData),
		AnnualCost:          max(round(cost.CurrentAnnualCost(in, 0), 2), 0),
		Fallback:            true,
	}
}

// Classify labels usage by its population coefficient of variation:
// above 0.3 is high-variance, above 0.2 is seasonal, otherwise consistent.
func Classify(months []domain.MonthlyUsage) domain.UsagePattern {
	cv := CoefficientOfVariation(months)
	switch {
	case cv > HighVarianceCoV:
		return domain.PatternHighVariance
	case cv > SeasonalCoV:
		return domain.PatternSeasonal
	default:
		return domain.PatternConsistent
	}
}

// CoefficientOfVariation returns stddev/mean of monthly usage, 0 when the
// mean is not positive.
func CoefficientOfVariation(months []domain.MonthlyUsage) float64 {
	if len(months) == 0 {
		return 0
	}
	var sum float64
	for _, m := range months {
		sum += m.Usage
	}
	mean := sum / float64(len(months))
	if mean <= 0 {
		return 0
	}
	var sq float64
	for _, m := range months {
		d := m.Usage - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(months))) / mean
}

// PlanScoring ranks up to ten plans with a neutral score while still pricing
// each one with the cost engine. Plans are ordered by ETF-amortized savings.
func PlanScoring(plans []domain.CatalogPlan, summary domain.UsageSummary, currentAnnualCost float64) domain.PlanScoringOutput {
	plans = plans[:min(len(plans), MaxScoredPlans)]

	annualKWh := summary.TotalAnnualUsage
	current := currentAnnualCost
	if current <= 0 {
		current = summary.AnnualCost
	}

	scored := make([]domain.ScoredPlan, 0, len(plans))
	for _, p := range plans {
		est := cost.EstimatePlan(p, annualKWh, current)
		reasoning := fmt.Sprintf("Estimated from the plan's published rate of $%.4f/kWh and $%.2f monthly fee.",
			p.BaseRate, p.MonthlyFee)
		if est.Err != nil {
			reasoning = "Cost could not be estimated from the published rates."
		}
		scored = append(scored, domain.ScoredPlan{
			PlanID:              p.ID,
			Supplier:            p.Supplier,
			PlanName:            p.PlanName,
			Score:               NeutralScore,
			EstimatedAnnualCost: est.AnnualCost,
			EstimatedSavings:    est.Savings,
			Reasoning:           sanitize.Truncate(reasoning, domain.MaxReasoningLength),
			SavingsBreakdown:    est.Breakdown,
		})
	}

	sortBySavings(scored)
	return domain.PlanScoringOutput{
		ScoredPlans:      scored,
		TotalPlansScored: len(scored),
		Fallback:         true,
	}
}

// Narrative writes a templated rationale for each top plan.
func Narrative(top []domain.ScoredPlan, summary domain.UsageSummary) domain.NarrativeOutput {
	top = top[:min(len(top), domain.MaxTopRecommendations)]

	recs := make([]domain.NarrativeRecommendation, 0, len(top))
	for i, p := range top {
		recs = append(recs, domain.NarrativeRecommendation{
			PlanID:    p.PlanID,
			Rationale: sanitize.Truncate(rationale(i+1, p), domain.MaxRationaleLength),
		})
	}

	explanation := fmt.Sprintf(
		"Based on your annual usage of %s kWh (%s pattern, peaking in %s), these plans are ranked by estimated cost. "+
			"A detailed explanation is not available right now, so the figures below come directly from each plan's published rates.",
		decimal.NewFromFloat(summary.TotalAnnualUsage).StringFixed(0), summary.UsagePattern, summary.PeakUsageMonth)

	return domain.NarrativeOutput{
		Explanation:        sanitize.Truncate(explanation, domain.MaxExplanationLength),
		TopRecommendations: recs,
		Fallback:           true,
	}
}

func rationale(rank int, p domain.ScoredPlan) string {
	var savings string
	switch {
	case p.EstimatedSavings > 0:
		savings = fmt.Sprintf("saving about $%.2f a year compared with your current plan", p.EstimatedSavings)
	case p.EstimatedSavings < 0:
		savings = fmt.Sprintf("costing about $%.2f more a year than your current plan", -p.EstimatedSavings)
	default:
		savings = "costing about the same as your current plan"
	}
	return fmt.Sprintf("#%d: %s from %s has an estimated annual cost of $%.2f, %s.",
		rank, p.PlanName, p.Supplier, p.EstimatedAnnualCost, savings)
}

// sortBySavings orders plans by descending comparable savings; ties keep
// catalog order.
func sortBySavings(plans []domain.ScoredPlan) {
	slices.SortStableFunc(plans, func(a, b domain.ScoredPlan) int {
		return cmp.Compare(b.ComparableSavings(), a.ComparableSavings())
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
