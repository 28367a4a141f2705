// internal/effects/apply.go
package effects

import (
	"fmt"

	"github.com/formkeeper/formkeeper/internal/coerce"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Effect operator application.
 *
 * Implements the closed operator set (add/subtract/multiply/divide/
 * replace/concat) as pure functions over a read-only state snapshot.
 * Apply never mutates the snapshot; it returns a single-entry Patch the
 * engine merges into its working state.
 *
 * Value vs attribute effects: Prop == "value" (or empty) patches the
 * field's value; any other Prop patches the field's rendering-attribute
 * overlay. Attribute patches never touch the FieldDefinition itself -
 * the overlay merges over schema defaults at read time.
 *
 * Division by zero is a defined error (ErrDivisionByZero), not a silent
 * NaN/Infinity. Membership of TargetField in the schema is the engine's
 * concern; this package only computes.
 *
 * Concat numeric inference: without sourceFields and without
 * strictString, two numeric operands add instead of concatenating,
 * matching the legacy surface syntax. strictString forces string
 * semantics regardless of operand types.
 */

// Patch is one proposed mutation: a value write or an attribute write
// against a single field. Only the state manager commits patches.
type Patch struct {
	Field string
	Prop  string // "value" or an attribute name
	Value any
}

// IsValue reports whether the patch targets the field's value rather
// than its attribute overlay.
func (p Patch) IsValue() bool {
	return p.Prop == "" || p.Prop == types.PropValue
}

// Apply computes the patch for one effect against the given snapshot.
// Pure: the snapshot is read, never written.
func Apply(effect types.EffectDefinition, state types.FormState) (Patch, error) {
	prop := effect.Prop
	if prop == "" {
		prop = types.PropValue
	}

	var current any
	if prop == types.PropValue {
		current = state[effect.TargetField]
	}

	value, err := compute(effect, current, state)
	if err != nil {
		return Patch{}, err
	}

	return Patch{Field: effect.TargetField, Prop: prop, Value: value}, nil
}

// compute dispatches on the operator. Effect N's output state is only
// visible to effect N+1 through the engine's working-state merge; this
// function sees a single consistent snapshot.
func compute(effect types.EffectDefinition, current any, state types.FormState) (any, error) {
	switch effect.Type {
	case types.EffectAdd, types.EffectSubtract, types.EffectMultiply, types.EffectDivide:
		return arithmetic(effect, current)
	case types.EffectReplace:
		return replace(effect)
	case types.EffectConcat:
		return concat(effect, current, state)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownEffectType, effect.Type)
	}
}

// arithmetic applies add/subtract/multiply/divide against the operand.
// Current value defaults to zero when absent or non-numeric; the operand
// must coerce cleanly.
func arithmetic(effect types.EffectDefinition, current any) (any, error) {
	operand, err := coerce.Number(effect.Value)
	if err != nil {
		return nil, err
	}
	base := coerce.CurrentNumber(current)

	switch effect.Type {
	case types.EffectAdd:
		return base + operand, nil
	case types.EffectSubtract:
		return base - operand, nil
	case types.EffectMultiply:
		return base * operand, nil
	default: // EffectDivide
		if operand == 0 {
			return nil, types.ErrDivisionByZero
		}
		return base / operand, nil
	}
}

// replace unconditionally sets the target to the operand, coerced per kind.
func replace(effect types.EffectDefinition) (any, error) {
	if effect.StrictString || effect.Kind == types.KindString {
		return coerce.String(effect.Value), nil
	}
	if effect.Kind == types.KindNumber {
		n, err := coerce.Number(effect.Value)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return effect.Value, nil
}

// concat builds a string from ordered source fields, or appends the
// operand to the current value when no source fields are given.
func concat(effect types.EffectDefinition, current any, state types.FormState) (any, error) {
	if len(effect.SourceFields) > 0 {
		out := ""
		for _, src := range effect.SourceFields {
			out += src.CharBefore + coerce.String(state[src.Field]) + src.CharAfter
		}
		return out, nil
	}

	// Numeric inference: two numbers add unless strictString forces
	// string semantics.
	if !effect.StrictString && effect.Kind != types.KindString &&
		coerce.IsNumeric(current) && coerce.IsNumeric(effect.Value) {
		return coerce.CurrentNumber(current) + coerce.CurrentNumber(effect.Value), nil
	}

	return coerce.String(current) + coerce.String(effect.Value), nil
}
