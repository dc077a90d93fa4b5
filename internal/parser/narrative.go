package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/sanitize"
	"github.com/ahrav/go-wattwise/internal/validation"
)

const (
	// MinNarrativeLength is the shortest response worth mapping to plans.
	MinNarrativeLength = 200
	// MinSectionLength is the shortest fragment kept as a plan section.
	MinSectionLength = 50
)

var sectionSeparator = regexp.MustCompile(`\s*-{3,}\s*`)

// ParseNarrative maps a plain-text narrative onto topPlanIDs. It always
// returns exactly len(topPlanIDs) recommendations with non-empty rationales:
// when the text has too few "---" sections, it is cut into equal character
// windows instead, which may split words at the boundaries.
func ParseNarrative(raw string, topPlanIDs []string) (domain.NarrativeOutput, error) {
	if err := checkPlanIDs(topPlanIDs); err != nil {
		return domain.NarrativeOutput{}, err
	}

	text := sanitize.Text(raw)
	if n := utf8.RuneCountInString(text); n < MinNarrativeLength {
		return domain.NarrativeOutput{}, domain.NewParseError(domain.StageNarrative,
			fmt.Sprintf("response too short (%d < %d characters)", n, MinNarrativeLength), raw, nil)
	}

	var out domain.NarrativeOutput
	if sections := splitSections(text); len(sections) >= len(topPlanIDs) {
		out = mapSections(sections, topPlanIDs)
	} else {
		flat := strings.Join(strings.Fields(sectionSeparator.ReplaceAllString(text, " ")), " ")
		if utf8.RuneCountInString(flat) < domain.MinExplanationLength {
			return domain.NarrativeOutput{}, domain.NewParseError(domain.StageNarrative,
				"response has no narrative content", raw, nil)
		}
		out = mapWindows(flat, topPlanIDs)
	}

	if err := validation.Narrative(out); err != nil {
		return domain.NarrativeOutput{}, err
	}
	return out, nil
}

func checkPlanIDs(ids []string) error {
	if len(ids) == 0 || len(ids) > domain.MaxTopRecommendations {
		return &domain.MappingError{PlanIDs: ids,
			Reason: fmt.Sprintf("expected 1 to %d plans, got %d", domain.MaxTopRecommendations, len(ids))}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return &domain.MappingError{PlanIDs: ids, Reason: "empty plan id"}
		}
		if _, dup := seen[id]; dup {
			return &domain.MappingError{PlanIDs: ids, Reason: "duplicate plan id " + id}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func splitSections(text string) []string {
	var sections []string
	for _, s := range sectionSeparator.Split(text, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) >= MinSectionLength {
			sections = append(sections, s)
		}
	}
	return sections
}

// mapSections assigns the first len(ids) sections to plans in order. Any
// further sections form the explanation; without them the explanation is the
// whole narrative.
func mapSections(sections, ids []string) domain.NarrativeOutput {
	out := domain.NarrativeOutput{TopRecommendations: make([]domain.NarrativeRecommendation, 0, len(ids))}
	for i, id := range ids {
		out.TopRecommendations = append(out.TopRecommendations, domain.NarrativeRecommendation{
			PlanID:    id,
			Rationale: sanitize.Truncate(sections[i], domain.MaxRationaleLength),
		})
	}

	rest := sections[len(ids):]
	if len(rest) == 0 {
		rest = sections
	}
	out.Explanation = sanitize.Truncate(strings.Join(rest, "\n\n"), domain.MaxExplanationLength)
	return out
}

// mapWindows cuts text into len(ids) equal rune windows.
func mapWindows(text string, ids []string) domain.NarrativeOutput {
	runes := []rune(text)
	size := (len(runes) + len(ids) - 1) / len(ids)

	out := domain.NarrativeOutput{TopRecommendations: make([]domain.NarrativeRecommendation, 0, len(ids))}
	for i, id := range ids {
		start := min(i*size, len(runes))
		end := min(start+size, len(runes))
		rationale := strings.TrimSpace(string(runes[start:end]))
		if rationale == "" {
			rationale = fmt.Sprintf("Plan %s was among the top-scored plans for your usage.", id)
		}
		out.TopRecommendations = append(out.TopRecommendations, domain.NarrativeRecommendation{
			PlanID:    id,
			Rationale: sanitize.Truncate(rationale, domain.MaxRationaleLength),
		})
	}
	out.Explanation = sanitize.Truncate(text, domain.MaxExplanationLength)
	return out
}
