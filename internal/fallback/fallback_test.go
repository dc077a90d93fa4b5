package fallback

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/validation"
)

var monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func inputWith(usage []float64, monthlyCost float64) domain.StageInput {
	data := make([]domain.MonthlyUsage, len(usage))
	for i, u := range usage {
		data[i] = domain.MonthlyUsage{Month: monthNames[i%12], Usage: u, Cost: monthlyCost}
	}
	return domain.StageInput{
		UsageData:   data,
		CurrentPlan: domain.CurrentPlan{Supplier: "Acme", PlanName: "Basic", RateStructure: "fixed"},
	}
}

func constant(v float64) []float64 {
	out := make([]float64, 12)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestUsageSummary_ConstantScenario(t *testing.T) {
	s := UsageSummary(inputWith(constant(1000), 125))

	assert.Equal(t, domain.PatternConsistent, s.UsagePattern)
	assert.Equal(t, 12000.0, s.TotalAnnualUsage)
	assert.Equal(t, 1000.0, s.AverageMonthlyUsage)
	assert.Equal(t, 1500.0, s.AnnualCost)
	assert.Equal(t, "Jan", s.PeakUsageMonth, "first month wins ties")
	assert.True(t, s.Fallback)
	assert.NoError(t, validation.UsageSummary(s))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		usage []float64
		want  domain.UsagePattern
	}{
		{name: "flat", usage: constant(800), want: domain.PatternConsistent},
		// Alternating 1000±x gives a population CoV of exactly x/1000.
		{name: "cv 0.15", usage: alternating(1000, 150), want: domain.PatternConsistent},
		{name: "cv 0.25", usage: alternating(1000, 250), want: domain.PatternSeasonal},
		{name: "cv 0.5", usage: alternating(1000, 500), want: domain.PatternHighVariance},
		{name: "all zero", usage: constant(0), want: domain.PatternConsistent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			months := inputWith(tt.usage, 0).UsageData
			assert.Equal(t, tt.want, Classify(months))
		})
	}
}

func alternating(mean, delta float64) []float64 {
	out := make([]float64, 12)
	for i := range out {
		if i%2 == 0 {
			out[i] = mean + delta
		} else {
			out[i] = mean - delta
		}
	}
	return out
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.InDelta(t, 0.25, CoefficientOfVariation(inputWith(alternating(1000, 250), 0).UsageData), 1e-12)
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))
}

func TestUsageSummary_ClampsAndPeak(t *testing.T) {
	usage := constant(15000)
	usage[6] = 16000
	s := UsageSummary(inputWith(usage, 0))

	assert.Equal(t, 10000.0, s.AverageMonthlyUsage)
	assert.Equal(t, 120000.0, s.TotalAnnualUsage)
	assert.Equal(t, "Jul", s.PeakUsageMonth)
	assert.Equal(t, 0.0, s.AnnualCost)
	assert.NoError(t, validation.UsageSummary(s))
}

func TestUsageSummary_CostFromTariff(t *testing.T) {
	in := inputWith(constant(1000), 0)
	rate, fee := 0.12, 5.0
	in.CurrentPlan.Rate, in.CurrentPlan.MonthlyFee = &rate, &fee

	s := UsageSummary(in)
	assert.Equal(t, 1500.0, s.AnnualCost)
}

func catalogPlans(n int) []domain.CatalogPlan {
	plans := make([]domain.CatalogPlan, n)
	for i := range plans {
		plans[i] = domain.CatalogPlan{
			ID:         fmt.Sprintf("plan-%02d", i),
			Supplier:   "Supplier",
			PlanName:   fmt.Sprintf("Plan %d", i),
			BaseRate:   0.09 + float64(i)*0.005,
			MonthlyFee: 4.95,
		}
	}
	return plans
}

func TestPlanScoring(t *testing.T) {
	summary := domain.UsageSummary{TotalAnnualUsage: 11000, AnnualCost: 1549}
	out := PlanScoring(catalogPlans(14), summary, 0)

	require.Len(t, out.ScoredPlans, MaxScoredPlans)
	assert.Equal(t, MaxScoredPlans, out.TotalPlansScored)
	assert.True(t, out.Fallback)
	for _, p := range out.ScoredPlans {
		assert.Equal(t, NeutralScore, p.Score)
		assert.Greater(t, p.EstimatedAnnualCost, 0.0, "priced plans never cost $0")
	}
	// Cheapest plan first.
	assert.Equal(t, "plan-00", out.ScoredPlans[0].PlanID)
	assert.Equal(t, 1049.40, out.ScoredPlans[0].EstimatedAnnualCost)
	assert.Equal(t, 499.60, out.ScoredPlans[0].EstimatedSavings)
	assert.NoError(t, validation.PlanScoring(out))
}

func TestPlanScoring_ExplicitCurrentCostWins(t *testing.T) {
	summary := domain.UsageSummary{TotalAnnualUsage: 11000, AnnualCost: 1549}
	plan := domain.CatalogPlan{ID: "p", Supplier: "S", PlanName: "P", BaseRate: 0.108, MonthlyFee: 9.95}

	out := PlanScoring([]domain.CatalogPlan{plan}, summary, 1400)
	assert.Equal(t, 1307.40, out.ScoredPlans[0].EstimatedAnnualCost)
	assert.Equal(t, 92.60, out.ScoredPlans[0].EstimatedSavings)
}

func TestPlanScoring_FreePlanAndUnpriceable(t *testing.T) {
	summary := domain.UsageSummary{TotalAnnualUsage: 5000, AnnualCost: 600}
	plans := []domain.CatalogPlan{
		{ID: "free", Supplier: "S", PlanName: "Free"},
		{ID: "broken", Supplier: "S", PlanName: "Broken", BaseRate: -1},
	}

	out := PlanScoring(plans, summary, 0)
	byID := map[string]domain.ScoredPlan{}
	for _, p := range out.ScoredPlans {
		byID[p.PlanID] = p
	}
	assert.Equal(t, 0.0, byID["free"].EstimatedAnnualCost, "only a genuinely free plan costs $0")
	assert.Equal(t, 600.0, byID["free"].EstimatedSavings)
	assert.Equal(t, 0.0, byID["broken"].EstimatedSavings)
	assert.Equal(t, 600.0, byID["broken"].EstimatedAnnualCost)
}

func TestPlanScoring_RanksByAmortizedSavings(t *testing.T) {
	summary := domain.UsageSummary{TotalAnnualUsage: 11000, AnnualCost: 1549}
	plans := []domain.CatalogPlan{
		// Cheaper energy but a steep fee on a short contract.
		{ID: "short", Supplier: "S", PlanName: "Short", BaseRate: 0.100, MonthlyFee: 0, ContractTermMonths: 6, EarlyTerminationFee: 200},
		{ID: "long", Supplier: "S", PlanName: "Long", BaseRate: 0.105, MonthlyFee: 0, ContractTermMonths: 12, EarlyTerminationFee: 0},
	}

	out := PlanScoring(plans, summary, 0)
	require.Len(t, out.ScoredPlans, 2)
	assert.Equal(t, "long", out.ScoredPlans[0].PlanID)

	short := out.ScoredPlans[1]
	assert.Greater(t, short.EstimatedSavings, out.ScoredPlans[0].EstimatedSavings)
	require.NotNil(t, short.SavingsBreakdown)
	assert.Equal(t, 400.0, short.SavingsBreakdown.AmortizedETF)
	assert.Equal(t, 49.0, short.SavingsBreakdown.AmortizedAnnualSavings)
	assert.NoError(t, validation.PlanScoring(out))
}

func TestNarrative(t *testing.T) {
	summary := domain.UsageSummary{TotalAnnualUsage: 11000, UsagePattern: domain.PatternSeasonal, PeakUsageMonth: "July"}
	top := []domain.ScoredPlan{
		{PlanID: "a", Supplier: "S1", PlanName: "Saver", EstimatedAnnualCost: 1307.4, EstimatedSavings: 241.6},
		{PlanID: "b", Supplier: "S2", PlanName: "Flex", EstimatedAnnualCost: 1600, EstimatedSavings: -51},
		{PlanID: "c", Supplier: "S3", PlanName: "Even", EstimatedAnnualCost: 1549},
		{PlanID: "d", Supplier: "S4", PlanName: "Extra"},
	}

	out := Narrative(top, summary)
	require.Len(t, out.TopRecommendations, 3)
	assert.True(t, out.Fallback)
	assert.Contains(t, out.Explanation, "11000 kWh")
	assert.Contains(t, out.TopRecommendations[0].Rationale, "saving about $241.60")
	assert.Contains(t, out.TopRecommendations[1].Rationale, "$51.00 more")
	assert.Contains(t, out.TopRecommendations[2].Rationale, "about the same")
	assert.NoError(t, validation.Narrative(out))
}
