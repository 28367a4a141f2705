// internal/schema/validate.go
package schema

import (
	"fmt"
	"regexp"

	"github.com/formkeeper/formkeeper/internal/coerce"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Field-level value validation.
 *
 * Produces per-field error strings for the rendering layer: required,
 * pattern, min/max. Distinct from engine errors - these are user-visible
 * and keyed by field name.
 *
 * Hidden fields are exempt from required checks: a field the user
 * cannot see must not block them. The caller passes the merged
 * attribute overlay so rule-driven visibility is honored.
 */

// ValidateValues checks every field's current value against its
// validation metadata and returns error strings keyed by field name.
// An empty map means the form is valid.
func (s *Schema) ValidateValues(state types.FormState, overlay types.AttributeOverlay) map[string]string {
	fieldErrors := make(map[string]string)

	walkFields(s.fields, func(f *types.FieldDefinition) {
		if hidden, ok := overlay.Get(f.Name, "hidden"); ok && hidden == true {
			return
		}

		value := state[f.Name]
		required := f.Required
		if v, ok := overlay.Get(f.Name, "required"); ok {
			required = v == true
		}

		if required && isEmptyValue(value) {
			fieldErrors[f.Name] = fmt.Sprintf("%s is required", fieldLabel(f))
			return
		}
		if isEmptyValue(value) {
			return
		}

		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				// Malformed pattern in the document: skip rather than
				// reject user input against a broken check.
				return
			}
			if !re.MatchString(coerce.String(value)) {
				fieldErrors[f.Name] = fmt.Sprintf("%s has an invalid format", fieldLabel(f))
				return
			}
		}

		if f.Min != nil || f.Max != nil {
			n := coerce.CurrentNumber(value)
			if f.Min != nil && n < *f.Min {
				fieldErrors[f.Name] = fmt.Sprintf("%s must be at least %v", fieldLabel(f), *f.Min)
				return
			}
			if f.Max != nil && n > *f.Max {
				fieldErrors[f.Name] = fmt.Sprintf("%s must be at most %v", fieldLabel(f), *f.Max)
				return
			}
		}
	})

	return fieldErrors
}

// fieldLabel prefers the display title for user-facing messages.
func fieldLabel(f *types.FieldDefinition) string {
	if f.Title != "" {
		return f.Title
	}
	return f.Name
}

// isEmptyValue mirrors the condition evaluator's emptiness rule:
// nil or empty string. Zero and false are present values.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
