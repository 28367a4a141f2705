// internal/conditions/evaluate.go
package conditions

import (
	"fmt"
	"regexp"

	"github.com/formkeeper/formkeeper/internal/coerce"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Condition predicate evaluation.
 *
 * Implements the fixed comparator vocabulary (true/false, empty/not-empty,
 * null/not-null, equal/not-equal, less-than/greater-than, between,
 * matches/not-matches) plus compound all/any evaluation with short-circuit.
 *
 * Fail-closed contract: Evaluate never panics for well-typed input and an
 * unsupported comparator yields false rather than an error, so a malformed
 * document degrades to "condition not met" instead of crashing the form.
 * The error return is advisory (pattern compile failure, malformed range);
 * the boolean result is already false whenever it is non-nil.
 *
 * Equality semantics: type-sensitive, no implicit coercion, except
 * float64/int/int64 mixing which is required for values round-tripped
 * through JSON decoding.
 *
 * Empty vs falsy: empty means nil or "". Zero and false are real values
 * and are NOT empty.
 *
 * Why function-based: a switch over a closed comparator set is cleaner
 * than thirteen single-method implementations with minimal variation.
 */

// Evaluate applies the condition's comparator to the given context value.
// The result is fail-closed: false for unknown comparators and false
// whenever the advisory error is non-nil.
func Evaluate(cond types.Condition, value any) (bool, error) {
	switch cond.When {
	case types.WhenTrue:
		return value == true, nil
	case types.WhenFalse:
		return value == false, nil
	case types.WhenEmpty:
		return isEmpty(value), nil
	case types.WhenNotEmpty:
		return !isEmpty(value), nil
	case types.WhenNull:
		return value == nil, nil
	case types.WhenNotNull:
		return value != nil, nil
	case types.WhenEqual:
		return equal(value, cond.Value), nil
	case types.WhenNotEqual:
		return !equal(value, cond.Value), nil
	case types.WhenLessThan:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a < b }), nil
	case types.WhenGreaterThan:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a > b }), nil
	case types.WhenBetween:
		return between(value, cond.Value)
	case types.WhenMatches:
		return matches(value, cond.Value)
	case types.WhenNotMatches:
		ok, err := matches(value, cond.Value)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, nil
	}
}

// EvaluateSet evaluates an ordered condition list under the given mode
// against a state snapshot. "all" short-circuits on the first false,
// "any" on the first true. An empty list is a vacuous pass in either
// mode. Advisory errors from sub-conditions are accumulated; the first
// one is returned alongside the final result.
func EvaluateSet(conds []types.Condition, mode types.ConditionMode, state types.FormState) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}
	if mode == "" {
		mode = types.ModeAll
	}

	var firstErr error
	for _, cond := range conds {
		ok, err := Evaluate(cond, state[cond.Field])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		switch mode {
		case types.ModeAny:
			if ok {
				return true, firstErr
			}
		default: // ModeAll
			if !ok {
				return false, firstErr
			}
		}
	}

	return mode != types.ModeAny, firstErr
}

// isEmpty reports nil or empty string. Falsy-string check only: 0 and
// false are values, not emptiness.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// equal performs strict equality with numeric type mixing.
// float64/int/int64 compare by value for JSON compatibility; everything
// else uses Go equality on comparable types.
func equal(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	if !comparable2(a) || !comparable2(b) {
		return false
	}
	return a == b
}

// comparable2 guards against runtime panics from == on maps and slices.
func comparable2(v any) bool {
	switch v.(type) {
	case map[string]any, []any, types.FormState:
		return false
	}
	return true
}

// numericCompare applies cmp when both operands are numeric; non-numeric
// operands evaluate to false.
func numericCompare(a, b any, cmp func(a, b float64) bool) bool {
	na, nb, ok := asNumbers(a, b)
	if !ok {
		return false
	}
	return cmp(na, nb)
}

// between checks an inclusive [min, max] range. The bound must be a
// two-element sequence; anything else returns ErrBadRange and false.
func between(value, bound any) (bool, error) {
	arr, ok := bound.([]any)
	if !ok || len(arr) != 2 {
		return false, types.ErrBadRange
	}
	v, okV := coerce.AsFloat(value)
	lo, okLo := coerce.AsFloat(arr[0])
	hi, okHi := coerce.AsFloat(arr[1])
	if !okV || !okLo || !okHi {
		return false, nil
	}
	return v >= lo && v <= hi, nil
}

// matches compiles the comparison value as a regular expression and
// tests it against the field value rendered as a string. Compile
// failure is reported via the advisory error with a false result.
func matches(value, pattern any) (bool, error) {
	re, err := regexp.Compile(coerce.String(pattern))
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrBadPattern, err)
	}
	return re.MatchString(coerce.String(value)), nil
}

// asNumbers attempts to convert both values to float64 for numeric
// comparison. Comparison mode: numeric strings do not parse.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := coerce.AsFloat(a)
	nb, okb := coerce.AsFloat(b)
	return na, nb, oka && okb
}
