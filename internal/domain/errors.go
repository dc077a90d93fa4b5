package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur during a pipeline run.
var (
	// ErrInvalidInput indicates the request failed validation before any
	// inference call was made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoEligiblePlans indicates no catalog plan survived preference filtering.
	ErrNoEligiblePlans = errors.New("no eligible plans")

	// ErrPlanNotFound indicates a plan ID is absent from the catalog.
	ErrPlanNotFound = errors.New("plan not found in catalog")

	// ErrPipelineFailed indicates that no stage produced any output.
	ErrPipelineFailed = errors.New("pipeline produced no output")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ParseError represents model output that could not be parsed at all.
type ParseError struct {
	// Stage is the stage whose output failed to parse.
	Stage Stage

	// Reason describes what was wrong with the text.
	Reason string

	// Snippet is a short prefix of the offending text for diagnostics.
	Snippet string

	// Err is the underlying decoding error, if any.
	Err error
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error: stage=%s, reason=%s", e.Stage, e.Reason)
	if e.Err != nil {
		msg += fmt.Sprintf(", err=%v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a ParseError, keeping at most 80 bytes of raw text.
func NewParseError(stage Stage, reason, raw string, err error) *ParseError {
	snippet := raw
	if len(snippet) > 80 {
		snippet = snippet[:80]
	}
	return &ParseError{Stage: stage, Reason: reason, Snippet: snippet, Err: err}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures, each prefixed by the
// offending field path.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: [%s]", e.Entity, strings.Join(e.Errors, "; "))
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddFieldError adds a message for a specific field path.
func (e *ValidationError) AddFieldError(path, msg string) {
	e.Errors = append(e.Errors, path+": "+msg)
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns the error when it has entries and nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// MismatchError reports a scored plan whose identity disagrees with the catalog.
type MismatchError struct {
	// PlanID is the plan ID the model returned.
	PlanID string

	// Field is the field that disagreed: planId, planName or supplier.
	Field string

	// Expected is the catalog value, empty when the plan is unknown.
	Expected string

	// Got is the value the model returned.
	Got string

	// Closest is the nearest catalog plan ID, when one could be suggested.
	Closest string
}

// Error implements the error interface for MismatchError.
func (e *MismatchError) Error() string {
	msg := fmt.Sprintf("catalog mismatch: plan=%s, field=%s, expected=%q, got=%q",
		e.PlanID, e.Field, e.Expected, e.Got)
	if e.Closest != "" {
		msg += ", closest=" + e.Closest
	}
	return msg
}

// Is lets errors.Is(err, ErrPlanNotFound) match unknown-plan mismatches.
func (e *MismatchError) Is(target error) bool {
	return target == ErrPlanNotFound && e.Field == "planId"
}

// MappingError reports narrative text that cannot be attributed to plans.
type MappingError struct {
	PlanIDs []string
	Reason  string
}

// Error implements the error interface for MappingError.
func (e *MappingError) Error() string {
	return fmt.Sprintf("narrative mapping error: plans=%v, reason=%s", e.PlanIDs, e.Reason)
}
