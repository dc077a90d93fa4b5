// Package domain contains pure, dependency-free domain models and types
// for the plan recommendation pipeline.
package domain

// MonthsPerYear is the number of monthly usage records a request must carry.
const MonthsPerYear = 12

// UsagePattern classifies how a household's consumption varies across the year.
type UsagePattern string

// Supported usage patterns.
const (
	PatternConsistent   UsagePattern = "consistent"
	PatternSeasonal     UsagePattern = "seasonal"
	PatternHighVariance UsagePattern = "high-variance"
)

// MonthlyUsage is a single billing month of consumption.
type MonthlyUsage struct {
	// Month is a human-readable label such as "January" or "2024-01".
	Month string `json:"month" validate:"required"`
	// Usage is the consumption for the month in kWh.
	Usage float64 `json:"usage" validate:"min=0"`
	// Cost is the amount billed for the month in dollars.
	Cost float64 `json:"cost" validate:"min=0"`
}

// CurrentPlan describes the contract the consumer is on today.
// Rate and MonthlyFee are optional because consumers often don't know them.
type CurrentPlan struct {
	Supplier      string   `json:"supplier" validate:"required"`
	PlanName      string   `json:"planName" validate:"required"`
	RateStructure string   `json:"rateStructure" validate:"required"`
	Rate          *float64 `json:"rate,omitempty" validate:"omitempty,min=0"`
	MonthlyFee    *float64 `json:"monthlyFee,omitempty" validate:"omitempty,min=0"`
}

// Preferences captures what the consumer told us matters to them.
type Preferences struct {
	PrioritizeSavings   bool    `json:"prioritizeSavings"`
	PreferRenewable     bool    `json:"preferRenewable"`
	AcceptVariableRates bool    `json:"acceptVariableRates"`
	MaxMonthlyBudget    float64 `json:"maxMonthlyBudget" validate:"min=0"`
	// MaxContractMonths limits the contract terms offered; zero means no limit.
	MaxContractMonths int `json:"maxContractMonths" validate:"min=0"`
}

// StageInput is the validated request that enters the pipeline.
type StageInput struct {
	UsageData   []MonthlyUsage `json:"usageData" validate:"len=12,dive"`
	CurrentPlan CurrentPlan    `json:"currentPlan"`
	Preferences Preferences    `json:"preferences"`
}

// TotalUsage returns the summed kWh across all monthly records.
func (in StageInput) TotalUsage() float64 {
	var total float64
	for _, m := range in.UsageData {
		total += m.Usage
	}
	return total
}

// TotalCost returns the summed billed dollars across all monthly records.
func (in StageInput) TotalCost() float64 {
	var total float64
	for _, m := range in.UsageData {
		total += m.Cost
	}
	return total
}

// UsageSummary is the output of the first stage.
type UsageSummary struct {
	AverageMonthlyUsage float64      `json:"averageMonthlyUsage" validate:"min=1,max=10000"`
	PeakUsageMonth      string       `json:"peakUsageMonth" validate:"required"`
	TotalAnnualUsage    float64      `json:"totalAnnualUsage" validate:"min=1,max=120000"`
	UsagePattern        UsagePattern `json:"usagePattern" validate:"oneof=consistent seasonal high-variance"`
	AnnualCost          float64      `json:"annualCost" validate:"min=0"`
	Fallback            bool         `json:"fallback,omitempty"`
}
