package domain

import "time"

// Stage identifies one of the three sequential pipeline phases.
type Stage string

// Pipeline stages in execution order.
const (
	StageUsageSummary Stage = "usage_summary"
	StagePlanScoring  Stage = "plan_scoring"
	StageNarrative    Stage = "narrative"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageUsageSummary, StagePlanScoring, StageNarrative}

// StageStatus is the state of a single stage within one pipeline run.
//
// A stage moves pending -> running -> {succeeded | degraded | fatal}.
// A stage whose predecessor ended fatal never runs and is marked skipped.
type StageStatus string

// Stage states.
const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusDegraded  StageStatus = "degraded"
	StatusFatal     StageStatus = "fatal"
	StatusSkipped   StageStatus = "skipped"
)

// HasOutput reports whether a stage in this state produced usable output.
func (s StageStatus) HasOutput() bool {
	return s == StatusSucceeded || s == StatusDegraded
}

// Terminal reports whether no further transitions are possible.
func (s StageStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusDegraded, StatusFatal, StatusSkipped:
		return true
	default:
		return false
	}
}

// StageError records why a stage degraded or failed.
type StageError struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineResult is created fresh for each request and never persisted.
type PipelineResult struct {
	RequestID    string                `json:"requestId"`
	UsageSummary *UsageSummary         `json:"usageSummary,omitempty"`
	PlanScoring  *PlanScoringOutput    `json:"planScoring,omitempty"`
	Narrative    *NarrativeOutput      `json:"narrative,omitempty"`
	Stages       map[Stage]StageStatus `json:"stages"`
	// ExecutionTime is the wall-clock duration across all stages in milliseconds.
	ExecutionTime int64        `json:"executionTime"`
	Timestamp     time.Time    `json:"timestamp"`
	Errors        []StageError `json:"errors"`
}

// Degraded reports whether any stage fell back to deterministic output.
func (r *PipelineResult) Degraded() bool {
	for _, s := range r.Stages {
		if s == StatusDegraded {
			return true
		}
	}
	return false
}
