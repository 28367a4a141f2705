// internal/schema/modifiers.go
package schema

import (
	"fmt"

	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Legacy modifier compilation.
 *
 * Older form documents declare effects inline on the field that drives
 * them ("modifiers") instead of as named rules with triggers. Both
 * syntaxes collapse into one internal representation at load time:
 * each modifier becomes a single-effect RuleDefinition plus a
 * synthesized trigger on the declaring field. There is no second
 * execution path - the engine only ever sees rules.
 *
 * Synthesized rule names are namespaced under "modifier:" to keep them
 * out of the way of user-defined rule names; the namespace is rejected
 * for user rules at registration.
 */

// ModifierRulePrefix namespaces rules synthesized from legacy modifiers.
const ModifierRulePrefix = "modifier:"

// CompileModifiers rewrites a field tree, converting legacy modifiers
// into rules plus triggers. The returned tree has Modifiers cleared and
// Triggers extended; the input is not mutated.
func CompileModifiers(fields []types.FieldDefinition) ([]types.FieldDefinition, []types.RuleDefinition) {
	var rules []types.RuleDefinition
	out := compileScope(fields, &rules)
	return out, rules
}

func compileScope(fields []types.FieldDefinition, rules *[]types.RuleDefinition) []types.FieldDefinition {
	out := make([]types.FieldDefinition, len(fields))
	for i, f := range fields {
		for n, mod := range f.Modifiers {
			name := fmt.Sprintf("%s%s/%d", ModifierRulePrefix, f.Name, n)

			target := mod.Target
			if target == "" {
				target = f.Name
			}

			*rules = append(*rules, types.RuleDefinition{
				Name: name,
				Effects: []types.EffectDefinition{{
					TargetField:  target,
					Prop:         mod.Prop,
					Type:         mod.Type,
					Kind:         mod.Kind,
					Value:        mod.Value,
					SourceFields: mod.SourceFields,
					StrictString: mod.StrictString,
				}},
			})

			// Default trigger condition: fire whenever the declaring
			// field holds a value.
			cond := types.Condition{Field: f.Name, When: types.WhenNotEmpty}
			if mod.When != nil {
				cond = *mod.When
				if cond.Field == "" {
					cond.Field = f.Name
				}
			}

			f.Triggers = append(f.Triggers, types.Trigger{
				Rule:       name,
				Conditions: []types.Condition{cond},
			})
		}
		f.Modifiers = nil

		if len(f.Fields) > 0 {
			f.Fields = compileScope(f.Fields, rules)
		}
		out[i] = f
	}
	return out
}
