package validation

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// StageInput checks a request before any inference call is made.
func StageInput(in domain.StageInput) error {
	verr := domain.NewValidationError("StageInput")
	if n := len(in.UsageData); n != domain.MonthsPerYear {
		verr.AddFieldError("usageData",
			fmt.Sprintf("expected %d monthly records, got %d", domain.MonthsPerYear, n))
		// Per-month checks are noise once the shape is wrong.
		return verr
	}
	Struct(verr, in)
	if in.TotalUsage() <= 0 {
		verr.AddFieldError("usageData", "total annual usage must be positive")
	}
	return verr.ErrOrNil()
}

// UsageSummary checks the first stage's output.
func UsageSummary(s domain.UsageSummary) error {
	verr := domain.NewValidationError("UsageSummary")
	Struct(verr, s)
	if s.PeakUsageMonth != "" && strings.TrimSpace(s.PeakUsageMonth) == "" {
		verr.AddFieldError("peakUsageMonth", "is required")
	}
	return verr.ErrOrNil()
}

// PlanScoring checks the second stage's output: cardinality, per-plan ranges,
// unique plan IDs and descending score order.
func PlanScoring(out domain.PlanScoringOutput) error {
	verr := domain.NewValidationError("PlanScoringOutput")
	Struct(verr, out)

	seen := make(map[string]int, len(out.ScoredPlans))
	for i, p := range out.ScoredPlans {
		if j, dup := seen[p.PlanID]; dup && p.PlanID != "" {
			verr.AddFieldError(fmt.Sprintf("scoredPlans[%d].planId", i),
				fmt.Sprintf("duplicates scoredPlans[%d]", j))
		}
		seen[p.PlanID] = i
		if i > 0 && p.Score > out.ScoredPlans[i-1].Score {
			verr.AddFieldError(fmt.Sprintf("scoredPlans[%d].score", i),
				fmt.Sprintf("plans must be sorted by descending score (%d after %d)",
					p.Score, out.ScoredPlans[i-1].Score))
		}
	}
	if out.TotalPlansScored < len(out.ScoredPlans) {
		verr.AddFieldError("totalPlansScored",
			fmt.Sprintf("must be >= %d scored plans, got %d", len(out.ScoredPlans), out.TotalPlansScored))
	}
	return verr.ErrOrNil()
}

// Narrative checks the third stage's output.
func Narrative(out domain.NarrativeOutput) error {
	verr := domain.NewValidationError("NarrativeOutput")
	Struct(verr, out)

	seen := make(map[string]struct{}, len(out.TopRecommendations))
	for i, r := range out.TopRecommendations {
		if strings.TrimSpace(r.Rationale) == "" {
			verr.AddFieldError(fmt.Sprintf("topRecommendations[%d].rationale", i), "must not be blank")
		}
		if _, dup := seen[r.PlanID]; dup {
			verr.AddFieldError(fmt.Sprintf("topRecommendations[%d].planId", i), "duplicate plan")
		}
		seen[r.PlanID] = struct{}{}
	}
	return verr.ErrOrNil()
}

// CatalogPlan checks a single catalog entry.
func CatalogPlan(p domain.CatalogPlan) error {
	verr := domain.NewValidationError("CatalogPlan " + p.ID)
	Struct(verr, p)
	return verr.ErrOrNil()
}

// Catalog checks every entry and that plan IDs are unique.
func Catalog(plans []domain.CatalogPlan) error {
	verr := domain.NewValidationError("Catalog")
	if len(plans) == 0 {
		verr.AddError("catalog is empty")
		return verr
	}

	seen := make(map[string]int, len(plans))
	for i, p := range plans {
		sub := domain.NewValidationError("")
		Struct(sub, p)
		for _, msg := range sub.Errors {
			verr.AddFieldError(fmt.Sprintf("plans[%d]", i), msg)
		}
		if j, dup := seen[p.ID]; dup {
			verr.AddFieldError(fmt.Sprintf("plans[%d].id", i),
				fmt.Sprintf("%q duplicates plans[%d]", p.ID, j))
			continue
		}
		seen[p.ID] = i
	}
	return verr.ErrOrNil()
}
