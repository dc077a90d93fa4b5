// Package validation holds the structural contracts every stage output must
// satisfy before it is handed to the next stage or returned to the caller.
//
// Range and cardinality rules live as validator struct tags on the domain
// types; rules a tag cannot express (ordering, uniqueness, exact month count)
// are hand-written predicates here. All failures are reported as a single
// *domain.ValidationError listing every offending field path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-wattwise/internal/domain"
)

// Package-level validator instance; validator caches struct metadata so a
// single instance is shared.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report wire names (averageMonthlyUsage) rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Contract checks a value of type T against its structural rules.
type Contract[T any] interface {
	Check(v T) error
}

// Func adapts a plain function to the Contract interface.
type Func[T any] func(v T) error

// Check calls f(v).
func (f Func[T]) Check(v T) error { return f(v) }

// Contracts for each pipeline boundary.
var (
	StageInputContract   Contract[domain.StageInput]        = Func[domain.StageInput](StageInput)
	UsageSummaryContract Contract[domain.UsageSummary]      = Func[domain.UsageSummary](UsageSummary)
	PlanScoringContract  Contract[domain.PlanScoringOutput] = Func[domain.PlanScoringOutput](PlanScoring)
	NarrativeContract    Contract[domain.NarrativeOutput]   = Func[domain.NarrativeOutput](Narrative)
)

// Struct runs the tag rules on v and collects failures into verr.
// It returns false when v could not be validated at all.
func Struct(verr *domain.ValidationError, v any) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		verr.AddError(invalid.Error())
		return false
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.AddError(err.Error())
		return false
	}
	for _, fe := range fieldErrs {
		verr.AddFieldError(fieldPath(fe), describe(fe))
	}
	return true
}

// fieldPath drops the root type name from the validator namespace:
// "UsageSummary.averageMonthlyUsage" becomes "averageMonthlyUsage".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if unit := lengthUnit(fe.Kind()); unit != "" {
			return fmt.Sprintf("must have at least %s %s", param, unit)
		}
		return fmt.Sprintf("must be >= %s, got %v", param, fe.Value())
	case "max":
		if unit := lengthUnit(fe.Kind()); unit != "" {
			return fmt.Sprintf("must have at most %s %s", param, unit)
		}
		return fmt.Sprintf("must be <= %s, got %v", param, fe.Value())
	case "len":
		return fmt.Sprintf("must have exactly %s entries", param)
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", param, fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func lengthUnit(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return "entries"
	default:
		return ""
	}
}
