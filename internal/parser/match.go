package parser

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// contractTerms matches standalone contract-length numbers so that term
// variants of one plan ("Saver 12", "Saver 24") compare equal.
var contractTerms = regexp.MustCompile(`\b(3|6|9|12|15|18|19|24|32|36|60)\b`)

// normalizeIdentity case-folds s, drops contract-length numbers and collapses
// whitespace.
func normalizeIdentity(s string) string {
	// A Caser carries state, so each call gets its own.
	folded := cases.Fold().String(s)
	folded = contractTerms.ReplaceAllString(folded, " ")
	return strings.Join(strings.Fields(folded), " ")
}

// identityMatches reports whether a model-echoed name or supplier refers to
// the catalog value: exactly, or equal once contract lengths are ignored.
func identityMatches(catalogValue, got string) bool {
	if catalogValue == got {
		return true
	}
	a, b := normalizeIdentity(catalogValue), normalizeIdentity(got)
	return a != "" && a == b
}

// closestPlan returns the ID of the catalog plan whose ID or name is nearest
// to got by edit distance, or "" for an empty catalog.
func closestPlan(plans []domain.CatalogPlan, got string, byName bool) string {
	target := cases.Fold().String(strings.TrimSpace(got))
	if target == "" {
		return ""
	}

	best, bestDist := "", -1
	for _, p := range plans {
		candidate := p.ID
		if byName {
			candidate = p.PlanName
		}
		d := levenshtein.ComputeDistance(target, cases.Fold().String(candidate))
		if bestDist == -1 || d < bestDist {
			best, bestDist = p.ID, d
		}
	}
	return best
}
