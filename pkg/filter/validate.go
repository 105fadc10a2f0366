package filter

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(validateRange, RangeFilter{})
	validate.RegisterStructValidation(validateScript, ScriptFilter{})
}

// validateRange rejects NaN and infinite bounds; an unbounded side is nil.
func validateRange(sl validator.StructLevel) {
	f := sl.Current().Interface().(RangeFilter)
	finite := true
	for _, b := range []struct {
		v     *float64
		field string
	}{{f.Min, "Min"}, {f.Max, "Max"}} {
		if b.v != nil && (math.IsNaN(*b.v) || math.IsInf(*b.v, 0)) {
			sl.ReportError(*b.v, b.field, strings.ToLower(b.field), "finite", "")
			finite = false
		}
	}
	if finite && f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		sl.ReportError(f.Max, "Max", "max", "gtefield", "Min")
	}
}

func validateScript(sl validator.StructLevel) {
	f := sl.Current().Interface().(ScriptFilter)
	if strings.TrimSpace(f.Script) == "" && f.Predicate == nil {
		sl.ReportError(f.Script, "Script", "script", "required_without", "Predicate")
	}
}

// Validate checks the structural rules of a definition: item type, required
// fields, ordered range bounds, and a script body. Failures wrap
// ErrInvalidFilter.
func Validate(def Definition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidFilter)
	}
	switch def.(type) {
	case RangeFilter, TermsFilter, ScriptFilter, TopologicalFilter:
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, def)
	}

	err := validate.Struct(def)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		msgs := make([]string, 0, len(fields))
		for _, fe := range fields {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s filter: %s", ErrInvalidFilter, def.Kind(), strings.Join(msgs, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
}
