package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// SampleInput is a valid request: a summer-peaking household on a 14 cent
// fixed plan with a 12 month contract limit.
func SampleInput() domain.StageInput {
	usage := []float64{820, 760, 700, 680, 900, 1250, 1480, 1520, 1180, 820, 740, 850}
	months := []string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}

	data := make([]domain.MonthlyUsage, len(months))
	for i, m := range months {
		data[i] = domain.MonthlyUsage{Month: m, Usage: usage[i], Cost: usage[i]*0.14 + 9.95}
	}
	rate, fee := 0.14, 9.95
	return domain.StageInput{
		UsageData: data,
		CurrentPlan: domain.CurrentPlan{
			Supplier:      "Lone Star Power",
			PlanName:      "Basic Saver 12",
			RateStructure: "fixed",
			Rate:          &rate,
			MonthlyFee:    &fee,
		},
		Preferences: domain.Preferences{
			PrioritizeSavings: true,
			PreferRenewable:   true,
			MaxContractMonths: 12,
		},
	}
}

// SamplePlans is a small catalog. Plans 0-3 and 5 fit a 12 month limit;
// plan 4 has a 36 month term.
func SamplePlans() []domain.CatalogPlan {
	return []domain.CatalogPlan{
		{ID: "green-mountain-12", Supplier: "Green Mountain Energy", PlanName: "Renewable Saver 12",
			BaseRate: 0.108, MonthlyFee: 5, ContractTermMonths: 12, EarlyTerminationFee: 150, RenewablePercent: 100,
			Ratings: domain.PlanRatings{ReliabilityScore: 4.5, CustomerServiceScore: 4.2}, Features: []string{"100% renewable"}},
		{ID: "txu-flex", Supplier: "TXU Energy", PlanName: "Flex Month-to-Month",
			BaseRate: 0.131, MonthlyFee: 0, ContractTermMonths: 0, RenewablePercent: 20},
		{ID: "reliant-6", Supplier: "Reliant", PlanName: "Simple Rate 6",
			BaseRate: 0.119, MonthlyFee: 9.95, ContractTermMonths: 6, EarlyTerminationFee: 50, RenewablePercent: 10},
		{ID: "gexa-12", Supplier: "Gexa Energy", PlanName: "Eco Saver 12",
			BaseRate: 0.112, MonthlyFee: 4.95, ContractTermMonths: 12, EarlyTerminationFee: 135, RenewablePercent: 100},
		{ID: "reliant-36", Supplier: "Reliant", PlanName: "Secure Advantage 36",
			BaseRate: 0.099, MonthlyFee: 9.95, ContractTermMonths: 36, EarlyTerminationFee: 295, RenewablePercent: 0},
		{ID: "cirro-9", Supplier: "Cirro Energy", PlanName: "Smart Simple 9",
			BaseRate: 0.125, MonthlyFee: 0, ContractTermMonths: 9, EarlyTerminationFee: 100, RenewablePercent: 0},
	}
}

// UsageSummaryResponse is a well-formed first-stage reply for SampleInput.
const UsageSummaryResponse = `{
  "averageMonthlyUsage": 975,
  "peakUsageMonth": "August",
  "totalAnnualUsage": 11700,
  "usagePattern": "seasonal",
  "annualCost": 1757.40
}`

// ScoreEntry is one entry of an index-based scoring reply.
type ScoreEntry struct {
	Index     int    `json:"index"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// ScoringResponse renders entries as a scoring reply, wrapped in a fenced
// block the way chat models usually answer.
func ScoringResponse(entries ...ScoreEntry) string {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		panic(err)
	}
	return "Here are the scores:\n```json\n" + string(b) + "\n```"
}

// NarrativeResponse renders a narrative reply with one section per plan
// name and a closing summary, separated by "---".
func NarrativeResponse(planNames ...string) string {
	sections := make([]string, 0, len(planNames)+1)
	for _, name := range planNames {
		sections = append(sections, fmt.Sprintf(
			"%s is a strong fit for this household. Its rate keeps the summer peak affordable "+
				"and the contract terms fit within the twelve month limit you asked for.", name))
	}
	sections = append(sections,
		"Overall, switching away from the current plan lowers the annual bill while keeping the contract short, "+
			"and each option above favors renewable supply.")
	return strings.Join(sections, "\n---\n")
}

// PlanNarrativeResponse is a single-plan paragraph for the concurrent
// narrative mode.
func PlanNarrativeResponse(planName string) string {
	return fmt.Sprintf("%s suits this household well. The household uses most of its electricity in the summer, "+
		"and this plan's fixed rate protects against seasonal price spikes. The contract length fits the limit "+
		"the household set, and the estimated annual cost is below what they pay today.", planName)
}
