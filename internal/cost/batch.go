package cost

import "github.com/ahrav/go-wattwise/internal/domain"

// Estimate is the priced outcome for one catalog plan.
type Estimate struct {
	PlanID         string
	AnnualCost     float64
	Savings        float64
	SavingsPercent float64
	// Breakdown itemizes the saving including the ETF; nil when Err is set.
	Breakdown *Breakdown
	// Err is set when the plan could not be priced; the entry then carries
	// zero savings and the current annual cost.
	Err error
}

// EstimatePlans prices every plan against the consumer's current annual cost.
// A plan that cannot be priced yields a zero-savings entry instead of failing
// the batch.
func EstimatePlans(plans []domain.CatalogPlan, annualKWh, currentAnnualCost float64) []Estimate {
	out := make([]Estimate, 0, len(plans))
	for _, p := range plans {
		out = append(out, EstimatePlan(p, annualKWh, currentAnnualCost))
	}
	return out
}

// EstimatePlan prices a single plan; see EstimatePlans.
func EstimatePlan(p domain.CatalogPlan, annualKWh, currentAnnualCost float64) Estimate {
	annual, err := AnnualCost(p.BaseRate, p.MonthlyFee, annualKWh)
	if err != nil {
		return Estimate{PlanID: p.ID, AnnualCost: max(currentAnnualCost, 0), Err: err}
	}
	s := Savings(currentAnnualCost, annual)
	est := Estimate{
		PlanID:         p.ID,
		AnnualCost:     annual,
		Savings:        s.Amount,
		SavingsPercent: s.Percent,
	}
	if b, err := SavingsAgainst(max(currentAnnualCost, 0), p, annualKWh); err == nil {
		est.Breakdown = &b
	}
	return est
}

// CurrentAnnualCost resolves what the consumer pays today: the billed figure
// when positive, then the summed monthly bills, then the current tariff.
func CurrentAnnualCost(in domain.StageInput, billed float64) float64 {
	if billed > 0 {
		return billed
	}
	if total := in.TotalCost(); total > 0 {
		return total
	}
	if t, ok := CurrentTariff(in.CurrentPlan); ok {
		if c, err := AnnualCost(t.BaseRate, t.MonthlyFee, in.TotalUsage()); err == nil {
			return c
		}
	}
	return 0
}
