package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"money":   func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"rate":    func(v float64) string { return fmt.Sprintf("$%.4f/kWh", v) },
	"kwh":     func(v float64) string { return fmt.Sprintf("%.0f kWh", v) },
	"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
	"join":    strings.Join,
	"term": func(months int) string {
		if months <= 0 {
			return "no contract (month-to-month)"
		}
		return fmt.Sprintf("%d months", months)
	},
	"add": func(a, b int) int { return a + b },
}

// Templates are parsed once at startup; a broken template is a programming
// error.
var (
	usageSummaryTmpl  = template.Must(template.New("usageSummary").Funcs(funcs).Parse(usageSummaryText))
	scoringTmpl       = template.Must(template.New("scoring").Funcs(funcs).Parse(scoringText))
	narrativeTmpl     = template.Must(template.New("narrative").Funcs(funcs).Parse(narrativeText))
	planNarrativeTmpl = template.Must(template.New("planNarrative").Funcs(funcs).Parse(planNarrativeText))
)

const usageSummaryText = `You are an energy analyst. Summarize twelve months of household electricity usage.

Monthly usage:
{{range .UsageData}}- {{.Month}}: {{kwh .Usage}}{{if gt .Cost 0.0}}, billed {{money .Cost}}{{end}}
{{end}}
Current plan: {{.CurrentPlan.PlanName}} from {{.CurrentPlan.Supplier}} ({{.CurrentPlan.RateStructure}}{{with .CurrentPlan.Rate}}, {{rate .}}{{end}}{{with .CurrentPlan.MonthlyFee}}, {{money .}}/month fee{{end}})

Respond with a single JSON object and nothing else:
{
  "averageMonthlyUsage": <number, kWh>,
  "peakUsageMonth": "<month with the highest usage>",
  "totalAnnualUsage": <number, kWh>,
  "usagePattern": "consistent" | "seasonal" | "high-variance",
  "annualCost": <number, dollars billed over the twelve months>
}
`

const scoringText = `You are an impartial electricity plan advisor. Score each candidate plan from 0 to 100 for this household.

Household:
- Annual usage: {{kwh .Summary.TotalAnnualUsage}} ({{.Summary.UsagePattern}}, peak in {{.Summary.PeakUsageMonth}})
- Current annual cost: {{money .CurrentAnnualCost}}
- Priorities:{{if .Preferences.PrioritizeSavings}} lowest cost;{{end}}{{if .Preferences.PreferRenewable}} renewable energy;{{end}}{{if .Preferences.AcceptVariableRates}} variable rates acceptable;{{else}} fixed rates only;{{end}}{{if gt .Preferences.MaxMonthlyBudget 0.0}} monthly budget {{money .Preferences.MaxMonthlyBudget}};{{end}}

Candidate plans:
{{range .Plans}}[{{.Index}}] {{.Plan.PlanName}} ({{.Plan.Supplier}}): {{rate .Plan.BaseRate}}, {{money .Plan.MonthlyFee}}/month, {{term .Plan.ContractTermMonths}}, early termination fee {{money .Plan.EarlyTerminationFee}}, {{percent .Plan.RenewablePercent}} renewable
{{end}}
Rules:
- Refer to plans ONLY by the number in square brackets, using the "index" field.
- Do NOT copy plan IDs, plan names or supplier names into your answer.
- Only use indices from 0 to {{.MaxIndex}}.

Respond with a JSON array and nothing else:
[{"index": <number>, "score": <0-100>, "reasoning": "<one or two sentences>"}]
`

const narrativeText = `You are writing for a household choosing a new electricity plan.

Household: {{kwh .Summary.TotalAnnualUsage}} per year ({{.Summary.UsagePattern}}, peak in {{.Summary.PeakUsageMonth}}), currently paying {{money .CurrentAnnualCost}} per year on {{.CurrentPlan.PlanName}} from {{.CurrentPlan.Supplier}}.

Top plans, with verified details. Use only these facts:
{{range $i, $p := .Plans}}
Plan {{add $i 1}}: {{$p.Plan.PlanName}} from {{$p.Plan.Supplier}}
- Rate: {{rate $p.Plan.BaseRate}}, monthly fee {{money $p.Plan.MonthlyFee}}
- Contract: {{term $p.Plan.ContractTermMonths}}, early termination fee {{money $p.Plan.EarlyTerminationFee}}
- Renewable: {{percent $p.Plan.RenewablePercent}}
{{- if $p.Plan.Features}}
- Features: {{join $p.Plan.Features ", "}}
{{- end}}
- Estimated annual cost: {{money $p.Scored.EstimatedAnnualCost}} (savings {{money $p.Scored.EstimatedSavings}})
{{end}}
Write plain text with no markdown. Use exactly this layout:
{{range $i, $p := .Plans}}{{if $i}}---
{{end}}A paragraph of at least two sentences on why plan {{add $i 1}} ({{$p.Plan.PlanName}}) suits this household.
{{end}}---
A closing paragraph summarizing the recommendation.
`

const planNarrativeText = `You are writing for a household choosing a new electricity plan.

Household: {{kwh .Summary.TotalAnnualUsage}} per year ({{.Summary.UsagePattern}}, peak in {{.Summary.PeakUsageMonth}}), currently paying {{money .CurrentAnnualCost}} per year.

Plan: {{.Plan.Plan.PlanName}} from {{.Plan.Plan.Supplier}}
- Rate: {{rate .Plan.Plan.BaseRate}}, monthly fee {{money .Plan.Plan.MonthlyFee}}
- Contract: {{term .Plan.Plan.ContractTermMonths}}, early termination fee {{money .Plan.Plan.EarlyTerminationFee}}
- Renewable: {{percent .Plan.Plan.RenewablePercent}}
{{- if .Plan.Plan.Features}}
- Features: {{join .Plan.Plan.Features ", "}}
{{- end}}
- Estimated annual cost: {{money .Plan.Scored.EstimatedAnnualCost}} (savings {{money .Plan.Scored.EstimatedSavings}})

In plain text with no markdown and using only the facts above, write one paragraph of three to five sentences explaining why this plan suits the household.
`
