// internal/coerce/coerce.go
package coerce

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Value coercion shared by condition evaluation and effect application.
 *
 * Three modes, one module, so the two consumers cannot drift:
 *   - AsFloat: comparison mode - numeric Go types only (float64/int/int64
 *     from JSON decoding), no string parsing. Comparators stay
 *     type-sensitive: "5" is not less-than 10.
 *   - Number: operand mode - strict. Numeric strings parse, booleans and
 *     blank strings fail with ErrCoercionFailed.
 *   - String: render mode - lenient. Every scalar renders, nil renders
 *     as the empty string so concat over unset fields is stable.
 *
 * Arithmetic operators read the target's current value with a default of
 * zero when absent or non-numeric (CurrentNumber); the operand itself
 * must coerce cleanly or the effect fails. The asymmetry is deliberate:
 * a half-filled form is normal, a rule carrying an unusable operand is a
 * defect worth surfacing.
 */

// AsFloat converts a numeric Go value to float64 for comparison.
// Handles float64, int, int64 from JSON unmarshaling; strings do not
// parse in comparison mode.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Number coerces an effect operand to float64.
// Accepts float64, int, int64, and numeric strings. Rejects booleans and
// whitespace-only strings per strict mode.
func Number(value any) (float64, error) {
	if f, ok := AsFloat(value); ok {
		return f, nil
	}
	s, ok := value.(string)
	if !ok {
		return 0, types.ErrCoercionFailed
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, types.ErrCoercionFailed
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, types.ErrCoercionFailed
	}
	return f, nil
}

// CurrentNumber reads a field's current value as a number, defaulting to
// zero for absent or non-numeric values.
func CurrentNumber(value any) float64 {
	n, err := Number(value)
	if err != nil {
		return 0
	}
	return n
}

// String coerces any scalar to its string representation. Lenient mode:
// nil renders as the empty string. Floats drop the trailing ".0" that
// fmt would keep, matching JSON surface text.
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsNumeric reports whether the value coerces to a number without error.
func IsNumeric(value any) bool {
	_, err := Number(value)
	return err == nil
}
