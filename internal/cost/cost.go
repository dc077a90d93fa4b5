// Package cost computes annual plan costs and savings.
//
// Every function in this package is pure: no I/O, no clock, no randomness.
// Arithmetic is carried out in decimal and rounded half away from zero to
// cents, so identical inputs always yield bit-identical float64 outputs.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// Errors returned for inputs the engine refuses to price.
var (
	ErrNegativeRate = errors.New("base rate cannot be negative")
	ErrNegativeFee  = errors.New("fee cannot be negative")
	ErrInvalidUsage = errors.New("usage must be positive")
)

const centPlaces = 2

var (
	monthsPerYear = decimal.NewFromInt(12)
	hundred       = decimal.NewFromInt(100)
)

// Tariff is the priced part of a plan: an energy rate and a fixed monthly fee.
type Tariff struct {
	// BaseRate is the energy price in $/kWh.
	BaseRate float64
	// MonthlyFee is the fixed service charge in $/month.
	MonthlyFee float64
}

// TariffOf returns the tariff of a catalog plan.
func TariffOf(p domain.CatalogPlan) Tariff {
	return Tariff{BaseRate: p.BaseRate, MonthlyFee: p.MonthlyFee}
}

// CurrentTariff returns the consumer's current tariff when its rate is known.
// A missing monthly fee is treated as zero.
func CurrentTariff(cp domain.CurrentPlan) (Tariff, bool) {
	if cp.Rate == nil {
		return Tariff{}, false
	}
	t := Tariff{BaseRate: *cp.Rate}
	if cp.MonthlyFee != nil {
		t.MonthlyFee = *cp.MonthlyFee
	}
	return t, true
}

// AnnualCost returns baseRate*usageKWh + monthlyFee*12, rounded to cents.
func AnnualCost(baseRate, monthlyFee, usageKWh float64) (float64, error) {
	d, err := annualCost(baseRate, monthlyFee, usageKWh)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func annualCost(baseRate, monthlyFee, usageKWh float64) (decimal.Decimal, error) {
	energy, fees, err := annualParts(baseRate, monthlyFee, usageKWh)
	if err != nil {
		return decimal.Zero, err
	}
	return energy.Add(fees).Round(centPlaces), nil
}

func annualParts(baseRate, monthlyFee, usageKWh float64) (energy, fees decimal.Decimal, err error) {
	switch {
	case !finite(baseRate) || baseRate < 0:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", ErrNegativeRate, baseRate)
	case !finite(monthlyFee) || monthlyFee < 0:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: monthly fee %v", ErrNegativeFee, monthlyFee)
	case !finite(usageKWh) || usageKWh <= 0:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v kWh", ErrInvalidUsage, usageKWh)
	}
	energy = decimal.NewFromFloat(baseRate).Mul(decimal.NewFromFloat(usageKWh))
	fees = decimal.NewFromFloat(monthlyFee).Mul(monthsPerYear)
	return energy, fees, nil
}

// SavingsResult is the difference between a current and a proposed annual cost.
type SavingsResult struct {
	// Amount is current minus proposed; negative when the proposal costs more.
	Amount float64
	// Percent is Amount as a percentage of current, 0 when current is 0.
	Percent float64
}

// Savings compares a current annual cost with a proposed one.
func Savings(current, proposed float64) SavingsResult {
	c := decimal.NewFromFloat(current)
	amount := c.Sub(decimal.NewFromFloat(proposed)).Round(centPlaces)
	return SavingsResult{
		Amount:  amount.InexactFloat64(),
		Percent: percentOf(amount, c).InexactFloat64(),
	}
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(centPlaces)
}

// Breakdown itemizes a switch from the current plan to a recommended plan.
// AmortizedAnnualSavings is the figure to compare plans with different
// contract lengths.
type Breakdown = domain.SavingsBreakdown

// TrueAnnualSavings prices both tariffs for annualKWh and itemizes the savings
// of moving to the recommended plan.
func TrueAnnualSavings(current Tariff, recommended domain.CatalogPlan, annualKWh float64) (Breakdown, error) {
	currentCost, err := annualCost(current.BaseRate, current.MonthlyFee, annualKWh)
	if err != nil {
		return Breakdown{}, fmt.Errorf("current plan: %w", err)
	}
	return breakdown(currentCost, recommended, annualKWh)
}

// SavingsAgainst is TrueAnnualSavings for callers that only know what the
// consumer paid over the last year, not their tariff.
func SavingsAgainst(currentAnnualCost float64, recommended domain.CatalogPlan, annualKWh float64) (Breakdown, error) {
	if !finite(currentAnnualCost) || currentAnnualCost < 0 {
		return Breakdown{}, fmt.Errorf("%w: current annual cost %v", ErrNegativeFee, currentAnnualCost)
	}
	return breakdown(decimal.NewFromFloat(currentAnnualCost).Round(centPlaces), recommended, annualKWh)
}

func breakdown(currentCost decimal.Decimal, plan domain.CatalogPlan, annualKWh float64) (Breakdown, error) {
	energy, fees, err := annualParts(plan.BaseRate, plan.MonthlyFee, annualKWh)
	if err != nil {
		return Breakdown{}, fmt.Errorf("plan %s: %w", plan.ID, err)
	}
	if !finite(plan.EarlyTerminationFee) || plan.EarlyTerminationFee < 0 {
		return Breakdown{}, fmt.Errorf("plan %s: %w: early termination fee %v",
			plan.ID, ErrNegativeFee, plan.EarlyTerminationFee)
	}

	recommended := energy.Add(fees).Round(centPlaces)
	etf := decimal.NewFromFloat(plan.EarlyTerminationFee).Round(centPlaces)
	amortized := amortize(etf, plan.ContractTermMonths)
	gross := currentCost.Sub(recommended)

	return Breakdown{
		CurrentAnnualCost:      currentCost.InexactFloat64(),
		RecommendedAnnualCost:  recommended.InexactFloat64(),
		EnergyCost:             energy.Round(centPlaces).InexactFloat64(),
		ServiceFees:            fees.Round(centPlaces).InexactFloat64(),
		EarlyTerminationFee:    etf.InexactFloat64(),
		AmortizedETF:           amortized.InexactFloat64(),
		FirstYearSavings:       gross.Sub(etf).Round(centPlaces).InexactFloat64(),
		AmortizedAnnualSavings: gross.Sub(amortized).Round(centPlaces).InexactFloat64(),
		SavingsPercent:         percentOf(gross, currentCost).InexactFloat64(),
	}, nil
}

// amortize spreads an ETF over the contract length in years. Plans without a
// term carry the full fee.
func amortize(etf decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 || etf.IsZero() {
		return etf
	}
	years := decimal.NewFromInt(int64(termMonths)).Div(monthsPerYear)
	return etf.Div(years).Round(centPlaces)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
