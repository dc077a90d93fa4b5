package domain

// Cardinality limits for stage outputs.
const (
	MaxScoredPlans        = 20
	MaxTopRecommendations = 3
	MaxReasoningLength    = 500
	MaxRationaleLength    = 2000
	MinExplanationLength  = 50
	MaxExplanationLength  = 5000
)

// PlanRatings holds third-party quality scores for a supplier plan.
type PlanRatings struct {
	ReliabilityScore     float64 `json:"reliabilityScore" yaml:"reliabilityScore" validate:"min=0,max=10"`
	CustomerServiceScore float64 `json:"customerServiceScore" yaml:"customerServiceScore" validate:"min=0,max=10"`
}

// CatalogPlan is a real supplier plan from the read-only catalog.
// It is the ground truth every scored plan must reconcile against.
type CatalogPlan struct {
	ID                  string      `json:"id" yaml:"id" validate:"required"`
	Supplier            string      `json:"supplier" yaml:"supplier" validate:"required"`
	PlanName            string      `json:"planName" yaml:"planName" validate:"required"`
	BaseRate            float64     `json:"baseRate" yaml:"baseRate" validate:"min=0"`
	MonthlyFee          float64     `json:"monthlyFee" yaml:"monthlyFee" validate:"min=0"`
	ContractTermMonths  int         `json:"contractTermMonths" yaml:"contractTermMonths" validate:"min=0"`
	EarlyTerminationFee float64     `json:"earlyTerminationFee" yaml:"earlyTerminationFee" validate:"min=0"`
	RenewablePercent    float64     `json:"renewablePercent" yaml:"renewablePercent" validate:"min=0,max=100"`
	Ratings             PlanRatings `json:"ratings" yaml:"ratings"`
	Features            []string    `json:"features" yaml:"features"`
}

// ScoredPlan is a catalog plan as ranked by the scoring stage.
// PlanID, Supplier and PlanName always come from the catalog entry.
type ScoredPlan struct {
	PlanID              string  `json:"planId" validate:"required"`
	Supplier            string  `json:"supplier" validate:"required"`
	PlanName            string  `json:"planName" validate:"required"`
	Score               int     `json:"score" validate:"min=0,max=100"`
	EstimatedAnnualCost float64 `json:"estimatedAnnualCost" validate:"min=0"`
	EstimatedSavings    float64 `json:"estimatedSavings"`
	Reasoning           string  `json:"reasoning,omitempty" validate:"max=500"`
	// SavingsBreakdown itemizes the switch, including the early termination
	// fee. It is nil when the cost engine could not price the plan.
	SavingsBreakdown *SavingsBreakdown `json:"savingsBreakdown,omitempty"`
}

// ComparableSavings is the saving used to rank plans with different contract
// lengths: the ETF-amortized annual saving when known, else EstimatedSavings.
func (p ScoredPlan) ComparableSavings() float64 {
	if p.SavingsBreakdown != nil {
		return p.SavingsBreakdown.AmortizedAnnualSavings
	}
	return p.EstimatedSavings
}

// SavingsBreakdown itemizes a switch from the current plan to a recommended
// plan.
type SavingsBreakdown struct {
	CurrentAnnualCost     float64 `json:"currentAnnualCost"`
	RecommendedAnnualCost float64 `json:"recommendedAnnualCost"`
	// EnergyCost and ServiceFees split the recommended plan's annual cost.
	EnergyCost  float64 `json:"energyCost"`
	ServiceFees float64 `json:"serviceFees"`
	// EarlyTerminationFee is the recommended plan's full ETF.
	EarlyTerminationFee float64 `json:"earlyTerminationFee"`
	// AmortizedETF is the ETF divided by the contract length in years.
	AmortizedETF float64 `json:"amortizedEtf"`
	// FirstYearSavings deducts the full ETF once.
	FirstYearSavings float64 `json:"firstYearSavings"`
	// AmortizedAnnualSavings deducts the amortized ETF.
	AmortizedAnnualSavings float64 `json:"amortizedAnnualSavings"`
	// SavingsPercent is the gross saving before any ETF as a percentage of
	// the current annual cost.
	SavingsPercent float64 `json:"savingsPercent"`
}

// PlanScoringOutput is the output of the second stage.
type PlanScoringOutput struct {
	ScoredPlans      []ScoredPlan `json:"scoredPlans" validate:"min=1,max=20,dive"`
	TotalPlansScored int          `json:"totalPlansScored" validate:"min=0"`
	Fallback         bool         `json:"fallback,omitempty"`
}

// TopPlanIDs returns the IDs of the n highest ranked plans.
func (o PlanScoringOutput) TopPlanIDs(n int) []string {
	n = min(n, len(o.ScoredPlans))
	ids := make([]string, 0, n)
	for _, p := range o.ScoredPlans[:n] {
		ids = append(ids, p.PlanID)
	}
	return ids
}

// NarrativeRecommendation explains why one plan was recommended.
type NarrativeRecommendation struct {
	PlanID    string `json:"planId" validate:"required"`
	Rationale string `json:"rationale" validate:"min=1,max=2000"`
}

// NarrativeOutput is the output of the third stage.
type NarrativeOutput struct {
	Explanation        string                    `json:"explanation" validate:"min=50,max=5000"`
	TopRecommendations []NarrativeRecommendation `json:"topRecommendations" validate:"min=1,max=3,dive"`
	Fallback           bool                      `json:"fallback,omitempty"`
}

// IndexedPlan pairs a catalog plan with the synthetic index it was shown
// under in a scoring prompt. The model answers with indices only.
type IndexedPlan struct {
	Index int
	Plan  CatalogPlan
}
