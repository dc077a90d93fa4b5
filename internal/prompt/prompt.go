// Package prompt builds the text sent to the inference backend for each
// stage. Builders validate their own inputs first so a bad request never
// costs an inference call.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/validation"
)

// DefaultMaxPlans is the number of catalog plans shown in a scoring prompt.
const DefaultMaxPlans = 20

// PlanLookup resolves plan IDs to full catalog records.
type PlanLookup interface {
	Lookup(id string) (domain.CatalogPlan, bool)
}

// ScoringPrompt is a scoring prompt plus the index table the parser uses to
// resolve the model's answer back to catalog plans.
type ScoringPrompt struct {
	Prompt       string
	IndexedPlans []domain.IndexedPlan
}

// EnrichedPlan is a scored plan with its complete catalog record.
type EnrichedPlan struct {
	Plan   domain.CatalogPlan
	Scored domain.ScoredPlan
}

// UsageSummary builds the first stage's prompt.
func UsageSummary(in domain.StageInput) (string, error) {
	if err := validation.StageInput(in); err != nil {
		return "", err
	}
	return render(usageSummaryTmpl, in)
}

// EligiblePlans returns the plans whose contract term fits the consumer's
// maximum, in catalog order. A maximum of zero accepts every plan.
func EligiblePlans(plans []domain.CatalogPlan, prefs domain.Preferences) []domain.CatalogPlan {
	out := make([]domain.CatalogPlan, 0, len(plans))
	for _, p := range plans {
		if prefs.MaxContractMonths > 0 && p.ContractTermMonths > prefs.MaxContractMonths {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Scoring builds the second stage's prompt over at most maxPlans eligible
// plans (DefaultMaxPlans when maxPlans <= 0), each shown under a synthetic
// index 0..N-1.
func Scoring(in domain.StageInput, summary domain.UsageSummary, currentAnnualCost float64,
	catalog []domain.CatalogPlan, maxPlans int) (ScoringPrompt, error) {
	if err := validation.UsageSummary(summary); err != nil {
		return ScoringPrompt{}, err
	}
	if maxPlans <= 0 {
		maxPlans = DefaultMaxPlans
	}

	eligible := EligiblePlans(catalog, in.Preferences)
	if len(eligible) == 0 {
		return ScoringPrompt{}, fmt.Errorf("%w: no plan has a contract of %d months or less",
			domain.ErrNoEligiblePlans, in.Preferences.MaxContractMonths)
	}
	eligible = eligible[:min(len(eligible), maxPlans)]

	indexed := make([]domain.IndexedPlan, len(eligible))
	for i, p := range eligible {
		indexed[i] = domain.IndexedPlan{Index: i, Plan: p}
	}

	text, err := render(scoringTmpl, struct {
		Summary           domain.UsageSummary
		Preferences       domain.Preferences
		CurrentAnnualCost float64
		Plans             []domain.IndexedPlan
		MaxIndex          int
	}{summary, in.Preferences, currentAnnualCost, indexed, len(indexed) - 1})
	if err != nil {
		return ScoringPrompt{}, err
	}
	return ScoringPrompt{Prompt: text, IndexedPlans: indexed}, nil
}

// Enrich attaches the full catalog record to each of the top scored plans.
func Enrich(top []domain.ScoredPlan, catalog PlanLookup) ([]EnrichedPlan, error) {
	if len(top) == 0 {
		return nil, &domain.MappingError{Reason: "no scored plans to explain"}
	}
	top = top[:min(len(top), domain.MaxTopRecommendations)]

	out := make([]EnrichedPlan, 0, len(top))
	for _, sp := range top {
		cp, ok := catalog.Lookup(sp.PlanID)
		if !ok {
			return nil, &domain.MismatchError{PlanID: sp.PlanID, Field: "planId", Got: sp.PlanID}
		}
		out = append(out, EnrichedPlan{Plan: cp, Scored: sp})
	}
	return out, nil
}

type narrativeData struct {
	Summary           domain.UsageSummary
	CurrentPlan       domain.CurrentPlan
	CurrentAnnualCost float64
	Plans             []EnrichedPlan
}

// Narrative builds the third stage's prompt for up to three top plans. The
// model is asked for one "---"-separated section per plan followed by a
// closing summary.
func Narrative(in domain.StageInput, summary domain.UsageSummary, currentAnnualCost float64,
	top []domain.ScoredPlan, catalog PlanLookup) (string, error) {
	plans, err := Enrich(top, catalog)
	if err != nil {
		return "", err
	}
	return render(narrativeTmpl, narrativeData{summary, in.CurrentPlan, currentAnnualCost, plans})
}

// PlanNarrative builds a single-plan narrative prompt for concurrent
// narrative generation.
func PlanNarrative(summary domain.UsageSummary, currentAnnualCost float64, plan EnrichedPlan) (string, error) {
	return render(planNarrativeTmpl, struct {
		Summary           domain.UsageSummary
		CurrentAnnualCost float64
		Plan              EnrichedPlan
	}{summary, currentAnnualCost, plan})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
