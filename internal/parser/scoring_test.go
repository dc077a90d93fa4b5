package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// fixtureCatalog is a minimal PlanLookup backed by a slice.
type fixtureCatalog []domain.CatalogPlan

func (c fixtureCatalog) Lookup(id string) (domain.CatalogPlan, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return domain.CatalogPlan{}, false
}

func (c fixtureCatalog) Plans() []domain.CatalogPlan { return c }

func testCatalog() fixtureCatalog {
	return fixtureCatalog{
		{ID: "green-12", Supplier: "Green Mountain", PlanName: "Renewable Saver 12", BaseRate: 0.108, MonthlyFee: 9.95, ContractTermMonths: 12},
		{ID: "green-24", Supplier: "Green Mountain", PlanName: "Renewable Saver 24", BaseRate: 0.104, MonthlyFee: 9.95, ContractTermMonths: 24},
		{ID: "txu-flex", Supplier: "TXU Energy", PlanName: "Flex Choice", BaseRate: 0.131, MonthlyFee: 0, ContractTermMonths: 0},
		{ID: "reliant-36", Supplier: "Reliant", PlanName: "Secure Advantage 36", BaseRate: 0.099, MonthlyFee: 4.95, ContractTermMonths: 36},
		{ID: "free-nights", Supplier: "Reliant", PlanName: "Free Nights", BaseRate: 0.142, MonthlyFee: 0, ContractTermMonths: 12},
	}
}

func indexedOf(plans []domain.CatalogPlan) []domain.IndexedPlan {
	out := make([]domain.IndexedPlan, len(plans))
	for i, p := range plans {
		out[i] = domain.IndexedPlan{Index: i, Plan: p}
	}
	return out
}

var testCosts = CostContext{AnnualUsageKWh: 11000, CurrentAnnualCost: 1549}

func TestParseIndexed_SubstitutesCatalogIdentity(t *testing.T) {
	cat := testCatalog()
	p := NewScoringParser(cat)

	raw := `[
		{"index": 0, "score": 82, "planId": "made-up", "planName": "Imaginary Plan", "supplier": "Nobody", "reasoning": "Cheapest fixed plan"},
		{"index": 3, "score": 91, "estimatedAnnualCost": 1}
	]`

	out, err := p.ParseIndexed(raw, indexedOf(cat), testCosts)
	require.NoError(t, err)
	require.Len(t, out.ScoredPlans, 2)

	first := out.ScoredPlans[0]
	assert.Equal(t, "reliant-36", first.PlanID, "sorted by descending score")
	assert.Equal(t, "Reliant", first.Supplier)
	assert.Equal(t, 91, first.Score)
	assert.Equal(t, 1148.40, first.EstimatedAnnualCost, "cost engine overrides model arithmetic")

	second := out.ScoredPlans[1]
	assert.Equal(t, "green-12", second.PlanID)
	assert.Equal(t, "Renewable Saver 12", second.PlanName)
	assert.Equal(t, "Green Mountain", second.Supplier)
	assert.Equal(t, 1307.40, second.EstimatedAnnualCost)
	assert.Equal(t, 241.60, second.EstimatedSavings)
	assert.Equal(t, "Cheapest fixed plan", second.Reasoning)
	assert.Equal(t, 2, out.TotalPlansScored)
}

func TestParseIndexed_WrappedObjectAndFence(t *testing.T) {
	cat := testCatalog()
	raw := "```json\n{\"scoredPlans\":[{\"index\":\"1\",\"score\":\"77\"}],\"totalPlansScored\":1}\n```"

	out, err := NewScoringParser(cat).ParseIndexed(raw, indexedOf(cat), testCosts)
	require.NoError(t, err)
	require.Len(t, out.ScoredPlans, 1)
	assert.Equal(t, "green-24", out.ScoredPlans[0].PlanID)
	assert.Equal(t, 77, out.ScoredPlans[0].Score)
}

func TestParseIndexed_IndexSafety(t *testing.T) {
	cat := testCatalog()
	n := len(cat)

	tests := []struct {
		name      string
		indices   []string
		wantErr   bool
		wantPlans int
	}{
		{name: "all valid", indices: []string{"0", "1", "2", "3", "4"}, wantPlans: 5},
		{name: "negative dropped", indices: []string{"0", "1", "-1"}, wantPlans: 2},
		{name: "equal to length dropped", indices: []string{"0", "1", fmt.Sprint(n)}, wantPlans: 2},
		{name: "exactly half invalid is kept", indices: []string{"0", "1", "99", "-4"}, wantPlans: 2},
		{name: "more than half invalid rejects", indices: []string{"0", "99", "100"}, wantErr: true},
		{name: "fractional index invalid", indices: []string{"0", "1.5", "2"}, wantPlans: 2},
		{name: "string index invalid", indices: []string{"0", `"first"`, "2"}, wantPlans: 2},
		{name: "null index invalid", indices: []string{"null", "null", "1"}, wantErr: true},
		{name: "all invalid rejects", indices: []string{"7", "8"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parts []string
			for _, idx := range tt.indices {
				parts = append(parts, fmt.Sprintf(`{"index":%s,"score":60}`, idx))
			}
			raw := "[" + strings.Join(parts, ",") + "]"

			out, err := NewScoringParser(cat).ParseIndexed(raw, indexedOf(cat), testCosts)
			if tt.wantErr {
				var verr *domain.ValidationError
				require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, out.ScoredPlans, tt.wantPlans)
			for _, sp := range out.ScoredPlans {
				_, ok := cat.Lookup(sp.PlanID)
				assert.True(t, ok, "plan %s must come from the catalog", sp.PlanID)
			}
		})
	}
}

func TestParseIndexed_ConfigurableThreshold(t *testing.T) {
	cat := testCatalog()
	raw := `[{"index":0,"score":60},{"index":1,"score":60},{"index":9,"score":60}]`

	_, err := NewScoringParser(cat).ParseIndexed(raw, indexedOf(cat), testCosts)
	require.NoError(t, err, "one third invalid is under the default threshold")

	_, err = NewScoringParser(cat, WithInvalidThreshold(0.25)).ParseIndexed(raw, indexedOf(cat), testCosts)
	assert.Error(t, err)

	strict := NewScoringParser(cat, WithInvalidThreshold(0))
	_, err = strict.ParseIndexed(raw, indexedOf(cat), testCosts)
	assert.ErrorContains(t, err, "1 of 3 entries rejected")
	_, err = strict.ParseIndexed(`[{"index":0,"score":60},{"index":1,"score":60}]`, indexedOf(cat), testCosts)
	assert.NoError(t, err, "a clean response passes a zero threshold")
}

func TestParseIndexed_DuplicatesAndClamping(t *testing.T) {
	cat := testCatalog()
	raw := `[{"index":2,"score":140},{"index":2,"score":10},{"index":4,"score":-3}]`

	out, err := NewScoringParser(cat).ParseIndexed(raw, indexedOf(cat), testCosts)
	require.NoError(t, err)
	require.Len(t, out.ScoredPlans, 2)
	assert.Equal(t, "txu-flex", out.ScoredPlans[0].PlanID)
	assert.Equal(t, 100, out.ScoredPlans[0].Score)
	assert.Equal(t, 0, out.ScoredPlans[1].Score)
}

func TestParseIndexed_TruncatesAndCaps(t *testing.T) {
	var plans []domain.CatalogPlan
	for i := range 25 {
		plans = append(plans, domain.CatalogPlan{
			ID: fmt.Sprintf("p%02d", i), Supplier: "S", PlanName: fmt.Sprintf("Plan %d", i), BaseRate: 0.1,
		})
	}
	var parts []string
	for i := range 25 {
		parts = append(parts, fmt.Sprintf(`{"index":%d,"score":%d,"reasoning":%q}`, i, i, strings.Repeat("r", 600)))
	}

	out, err := NewScoringParser(fixtureCatalog(plans)).ParseIndexed("["+strings.Join(parts, ",")+"]", indexedOf(plans), testCosts)
	require.NoError(t, err)
	assert.Len(t, out.ScoredPlans, domain.MaxScoredPlans)
	assert.Equal(t, 25, out.TotalPlansScored)
	assert.Equal(t, 24, out.ScoredPlans[0].Score)
	assert.Len(t, out.ScoredPlans[0].Reasoning, domain.MaxReasoningLength)
}

func TestParseIndexed_ParseErrors(t *testing.T) {
	cat := testCatalog()
	for _, raw := range []string{"", "no json here", `{"plans":[]}`, `"just a string"`} {
		_, err := NewScoringParser(cat).ParseIndexed(raw, indexedOf(cat), testCosts)
		var perr *domain.ParseError
		assert.True(t, errors.As(err, &perr), "raw %q: expected ParseError, got %v", raw, err)
	}

	_, err := NewScoringParser(cat).ParseIndexed(`[]`, indexedOf(cat), testCosts)
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr), "an empty array is a validation failure")
}

func TestParseDirect_AntiHallucination(t *testing.T) {
	cat := testCatalog()

	tests := []struct {
		name   string
		entry  string
		wantID string
	}{
		{name: "exact", entry: `{"planId":"green-12","planName":"Renewable Saver 12","supplier":"Green Mountain","score":80}`, wantID: "green-12"},
		{name: "contract length variant", entry: `{"planId":"green-12","planName":"Renewable Saver 24","supplier":"Green Mountain","score":80}`, wantID: "green-12"},
		{name: "case folded", entry: `{"planId":"txu-flex","planName":"FLEX CHOICE","supplier":"txu energy","score":80}`, wantID: "txu-flex"},
		{name: "unknown id", entry: `{"planId":"green-99","planName":"Renewable Saver 12","supplier":"Green Mountain","score":80}`},
		{name: "wrong name", entry: `{"planId":"green-12","planName":"Renewable Premium","supplier":"Green Mountain","score":80}`},
		{name: "wrong supplier", entry: `{"planId":"green-12","planName":"Renewable Saver 12","supplier":"Reliant","score":80}`},
		{name: "non-term digits differ", entry: `{"planId":"green-12","planName":"Renewable Saver 13","supplier":"Green Mountain","score":80}`},
	}

	good := `{"planId":"reliant-36","planName":"Secure Advantage 36","supplier":"Reliant","score":70}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "[" + tt.entry + "," + good + "]"
			out, err := NewScoringParser(cat).ParseDirect(raw, testCosts)
			require.NoError(t, err)

			var ids []string
			for _, sp := range out.ScoredPlans {
				ids = append(ids, sp.PlanID)
				cp, ok := cat.Lookup(sp.PlanID)
				require.True(t, ok)
				assert.Equal(t, cp.PlanName, sp.PlanName, "identity comes from the catalog")
				assert.Equal(t, cp.Supplier, sp.Supplier)
			}
			if tt.wantID != "" {
				assert.Equal(t, []string{tt.wantID, "reliant-36"}, ids)
			} else {
				assert.Equal(t, []string{"reliant-36"}, ids)
			}
		})
	}
}

func TestParseDirect_RejectsMostlyFabricated(t *testing.T) {
	cat := testCatalog()
	raw := `[
		{"planId":"fake-1","planName":"Fake","supplier":"Nobody","score":99},
		{"planId":"fake-2","planName":"Fake","supplier":"Nobody","score":98},
		{"planId":"green-12","planName":"Renewable Saver 12","supplier":"Green Mountain","score":60}
	]`
	_, err := NewScoringParser(cat).ParseDirect(raw, testCosts)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "2 of 3 entries rejected")
}

func TestReconcile_MismatchDetails(t *testing.T) {
	p := NewScoringParser(testCatalog())

	_, err := p.reconcile(map[string]any{"planId": "green-13", "planName": "x", "supplier": "y"})
	var mm *domain.MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "planId", mm.Field)
	assert.Equal(t, "green-12", mm.Closest)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	_, err = p.reconcile(map[string]any{"planId": "green-12", "planName": "Renewable Savr 12", "supplier": "Green Mountain"})
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "planName", mm.Field)
	assert.Equal(t, "Renewable Saver 12", mm.Expected)
	assert.NotErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestSortScored(t *testing.T) {
	plans := []domain.ScoredPlan{
		{PlanID: "c", Score: 70, EstimatedSavings: 10},
		{PlanID: "a", Score: 90, EstimatedSavings: 5},
		{PlanID: "b", Score: 70, EstimatedSavings: 50},
		{PlanID: "d", Score: 70, EstimatedSavings: 10},
	}
	SortScored(plans)

	var ids []string
	for _, p := range plans {
		ids = append(ids, p.PlanID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestSortScored_TiesUseAmortizedSavings(t *testing.T) {
	plans := []domain.ScoredPlan{
		{PlanID: "a", Score: 80, EstimatedSavings: 300,
			SavingsBreakdown: &domain.SavingsBreakdown{AmortizedAnnualSavings: 100}},
		{PlanID: "b", Score: 80, EstimatedSavings: 200,
			SavingsBreakdown: &domain.SavingsBreakdown{AmortizedAnnualSavings: 200}},
		{PlanID: "c", Score: 80, EstimatedSavings: 150},
	}
	SortScored(plans)

	var ids []string
	for _, p := range plans {
		ids = append(ids, p.PlanID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestIdentityMatches(t *testing.T) {
	assert.True(t, identityMatches("Saver 12", "Saver 12"))
	assert.True(t, identityMatches("Saver 12", "saver 36"))
	assert.True(t, identityMatches("Saver 12 Month", "Saver 60 month"))
	assert.False(t, identityMatches("Saver 12", "Saver 120"))
	assert.False(t, identityMatches("Saver", "Super Saver"))
	assert.False(t, identityMatches("12", "24"), "names made only of terms never fuzzy-match")
	assert.False(t, identityMatches("Saver", ""))
}
