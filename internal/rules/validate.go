// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Rule validation and normalization.
 *
 * Validates structural integrity at registration time: non-empty name,
 * non-empty ordered effect list, each effect structurally valid, effect
 * count bounded. Moving error detection to registration keeps the
 * per-change path free of structural checks - a rule that registers is
 * a rule that executes without surprises (short of runtime failures
 * like division by zero, which depend on state).
 *
 * Normalization fills surface-syntax defaults once: Prop defaults to
 * "value", condition-set mode defaults to "all". The engine never
 * re-checks defaults.
 */

// knownEffectTypes is the closed operator set. Adding an operator means
// extending this set and the dispatch in internal/effects.
var knownEffectTypes = map[types.EffectType]bool{
	types.EffectAdd:      true,
	types.EffectSubtract: true,
	types.EffectMultiply: true,
	types.EffectDivide:   true,
	types.EffectReplace:  true,
	types.EffectConcat:   true,
}

// Validate checks a rule definition's structural integrity.
// Returns a ValidationError naming the rule on failure.
func Validate(rule types.RuleDefinition) error {
	if rule.Name == "" {
		return &types.ValidationError{Subject: rule.Name, Reason: types.ErrEmptyRuleName}
	}
	if len(rule.Effects) == 0 {
		return &types.ValidationError{Subject: rule.Name, Reason: types.ErrNoEffects}
	}
	if len(rule.Effects) > types.MaxEffectsPerRule {
		return &types.ValidationError{Subject: rule.Name, Reason: types.ErrTooManyEffects}
	}
	for i, effect := range rule.Effects {
		if effect.TargetField == "" {
			return &types.ValidationError{
				Subject: rule.Name,
				Reason:  fmt.Errorf("effect %d: %w", i, types.ErrEmptyTargetField),
			}
		}
		if !knownEffectTypes[effect.Type] {
			return &types.ValidationError{
				Subject: rule.Name,
				Reason:  fmt.Errorf("effect %d: %w: %q", i, types.ErrUnknownEffectType, effect.Type),
			}
		}
	}
	return nil
}

// Normalize fills defaults so downstream code can rely on canonical
// shape: Prop "value", condition mode "all".
func Normalize(rule types.RuleDefinition) types.RuleDefinition {
	effects := make([]types.EffectDefinition, len(rule.Effects))
	for i, e := range rule.Effects {
		if e.Prop == "" {
			e.Prop = types.PropValue
		}
		effects[i] = e
	}
	rule.Effects = effects

	if rule.Condition != nil && rule.Condition.Mode == "" {
		cond := *rule.Condition
		cond.Mode = types.ModeAll
		rule.Condition = &cond
	}
	return rule
}
