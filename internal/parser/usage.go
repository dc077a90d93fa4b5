package parser

import (
	"strings"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/sanitize"
	"github.com/ahrav/go-wattwise/internal/validation"
)

const maxMonthLabel = 32

// ParseUsageSummary parses the usage-summary stage response. There is no
// reference data to reconcile against, so only the structural contract is
// checked.
func ParseUsageSummary(raw string) (domain.UsageSummary, error) {
	v, err := decodeJSON(domain.StageUsageSummary, raw)
	if err != nil {
		return domain.UsageSummary{}, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return domain.UsageSummary{}, domain.NewParseError(domain.StageUsageSummary, "expected a JSON object", raw, nil)
	}

	verr := domain.NewValidationError("UsageSummary")
	number := func(key string) float64 {
		f, ok := sanitize.Number(obj[key])
		if !ok {
			verr.AddFieldError(key, "missing or not a number")
		}
		return f
	}

	summary := domain.UsageSummary{
		AverageMonthlyUsage: number("averageMonthlyUsage"),
		TotalAnnualUsage:    number("totalAnnualUsage"),
		AnnualCost:          number("annualCost"),
		PeakUsageMonth:      sanitize.String(obj["peakUsageMonth"], maxMonthLabel),
		UsagePattern:        normalizePattern(sanitize.String(obj["usagePattern"], 0)),
	}
	if verr.HasErrors() {
		return domain.UsageSummary{}, verr
	}
	if err := validation.UsageSummary(summary); err != nil {
		return domain.UsageSummary{}, err
	}
	return summary, nil
}

var patternSeparators = strings.NewReplacer("_", "-", " ", "-")

// normalizePattern maps "High Variance" and "high_variance" to "high-variance".
func normalizePattern(s string) domain.UsagePattern {
	return domain.UsagePattern(patternSeparators.Replace(strings.ToLower(s)))
}
