package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-wattwise/internal/domain"
)

func TestParseUsageSummary(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.UsageSummary
		wantErr any
	}{
		{
			name: "plain object",
			raw:  `{"averageMonthlyUsage":916.7,"peakUsageMonth":"July","totalAnnualUsage":11000,"usagePattern":"seasonal","annualCost":1549}`,
			want: domain.UsageSummary{AverageMonthlyUsage: 916.7, PeakUsageMonth: "July", TotalAnnualUsage: 11000, UsagePattern: domain.PatternSeasonal, AnnualCost: 1549},
		},
		{
			name: "fenced with noisy numbers",
			raw:  "```json\n{\"averageMonthlyUsage\":\"1,000 kWh\",\"peakUsageMonth\":\" August \",\"totalAnnualUsage\":\"12,000\",\"usagePattern\":\"High Variance\",\"annualCost\":\"$1,500.00\"}\n```",
			want: domain.UsageSummary{AverageMonthlyUsage: 1000, PeakUsageMonth: "August", TotalAnnualUsage: 12000, UsagePattern: domain.PatternHighVariance, AnnualCost: 1500},
		},
		{
			name: "prose around object",
			raw:  `Sure! Here is the summary: {"averageMonthlyUsage":500,"peakUsageMonth":"Jan","totalAnnualUsage":6000,"usagePattern":"consistent","annualCost":0} Let me know.`,
			want: domain.UsageSummary{AverageMonthlyUsage: 500, PeakUsageMonth: "Jan", TotalAnnualUsage: 6000, UsagePattern: domain.PatternConsistent},
		},
		{name: "not json", raw: "I could not compute that.", wantErr: &domain.ParseError{}},
		{name: "array", raw: `[1,2,3]`, wantErr: &domain.ParseError{}},
		{name: "missing number", raw: `{"peakUsageMonth":"July","totalAnnualUsage":11000,"usagePattern":"seasonal","annualCost":1}`, wantErr: &domain.ValidationError{}},
		{name: "out of range", raw: `{"averageMonthlyUsage":20000,"peakUsageMonth":"July","totalAnnualUsage":11000,"usagePattern":"seasonal","annualCost":1}`, wantErr: &domain.ValidationError{}},
		{name: "unknown pattern", raw: `{"averageMonthlyUsage":900,"peakUsageMonth":"July","totalAnnualUsage":11000,"usagePattern":"spiky","annualCost":1}`, wantErr: &domain.ValidationError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUsageSummary(tt.raw)
			switch want := tt.wantErr.(type) {
			case *domain.ParseError:
				require.Error(t, err)
				assert.True(t, errors.As(err, &want), "expected ParseError, got %T: %v", err, err)
			case *domain.ValidationError:
				require.Error(t, err)
				assert.True(t, errors.As(err, &want), "expected ValidationError, got %T: %v", err, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
