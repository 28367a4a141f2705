// internal/rules/triggers.go
package rules

import (
	"fmt"

	"github.com/formkeeper/formkeeper/internal/conditions"
	"github.com/formkeeper/formkeeper/internal/schema"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Trigger resolution.
 *
 * Pure query: given the changed field and an execution context built
 * from the post-edit state, find the field's declared triggers, evaluate
 * each trigger's condition (single or compound), and yield the names of
 * rules to execute. Declaration order is preserved; a rule referenced by
 * two satisfied triggers in the same cycle contributes once.
 *
 * Advisory evaluation errors (bad match patterns) are collected and
 * surfaced to the caller's error channel; the trigger in question fails
 * closed and contributes nothing.
 */

// ResolveTriggers returns the rules to execute for a change to the
// named field, in declaration order with duplicates collapsed. A field
// absent from the schema yields no rules and no error: an unknown field
// simply has no triggers.
func ResolveTriggers(changedField string, s *schema.Schema, ctx *types.ExecutionContext) ([]string, []error) {
	field, ok := s.Find(changedField)
	if !ok {
		return nil, nil
	}

	var names []string
	var errs []error
	seen := make(map[string]bool, len(field.Triggers))

	for _, trig := range field.Triggers {
		fired, err := conditions.EvaluateSet(trig.Conditions, trig.Mode, ctx.State)
		if err != nil {
			errs = append(errs, fmt.Errorf("trigger for rule %q on field %q: %w", trig.Rule, changedField, err))
		}
		if !fired || seen[trig.Rule] {
			continue
		}
		seen[trig.Rule] = true
		names = append(names, trig.Rule)
	}

	return names, errs
}
