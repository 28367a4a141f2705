package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for FormKeeper operations.
var (
	// ErrEmptyRuleName indicates a rule registered without a name.
	ErrEmptyRuleName = errors.New("rule name is empty")

	// ErrNoEffects indicates a rule registered with an empty effect list.
	ErrNoEffects = errors.New("rule has no effects")

	// ErrEmptyTargetField indicates an effect without a target field.
	ErrEmptyTargetField = errors.New("effect target field is empty")

	// ErrUnknownEffectType indicates an effect operator outside the closed set.
	ErrUnknownEffectType = errors.New("unknown effect type")

	// ErrUnknownTargetField indicates an effect targeting a field not in the schema.
	ErrUnknownTargetField = errors.New("target field not in schema")

	// ErrDivisionByZero indicates a divide effect with a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrCoercionFailed indicates a value could not be coerced to the effect kind.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrBadPattern indicates a matches condition with an invalid regular expression.
	ErrBadPattern = errors.New("invalid match pattern")

	// ErrBadRange indicates a between condition without a two-element [min, max] value.
	ErrBadRange = errors.New("between requires a two-element [min, max] value")

	// ErrDuplicateFieldName indicates two sibling fields share a name.
	ErrDuplicateFieldName = errors.New("duplicate field name in sibling scope")

	// ErrSchemaTooDeep indicates nested fields exceed MaxSchemaDepth.
	ErrSchemaTooDeep = errors.New("schema nesting exceeds maximum depth")

	// ErrTooManyEffects indicates a rule exceeds MaxEffectsPerRule.
	ErrTooManyEffects = errors.New("rule has too many effects")

	// ErrReentrantUpdate indicates setState called while an update is applying.
	ErrReentrantUpdate = errors.New("reentrant state update")

	// ErrQueueFull indicates the execution queue is at MaxQueueDepth.
	ErrQueueFull = errors.New("execution queue full")

	// ErrEngineClosed indicates a submission to a closed execution engine.
	ErrEngineClosed = errors.New("execution engine closed")

	// ErrExecutionTimeout indicates a queued execution exceeded its deadline.
	ErrExecutionTimeout = errors.New("rule execution timed out")

	// ErrCascadeDepthExceeded indicates cascading re-evaluation hit its bound.
	ErrCascadeDepthExceeded = errors.New("cascade depth exceeded")
)

// ValidationError reports a malformed field, rule, or effect definition
// at registration or construction time. Fatal to that registration call,
// non-fatal to the overall form.
type ValidationError struct {
	Subject string // rule or field name
	Reason  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid definition %q: %v", e.Subject, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// RuleNotFoundError reports a trigger referencing a rule name absent
// from the registry. The trigger's contribution is skipped.
type RuleNotFoundError struct {
	Rule string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.Rule)
}

// RuleExecutionError reports a failed effect: unknown target field,
// division by zero, pattern compile failure, or coercion failure.
// Collected per effect; sibling effects and queued executions continue.
type RuleExecutionError struct {
	Rule        string
	EffectIndex int // -1 when the failure is not tied to one effect
	TargetField string
	Err         error
}

func (e *RuleExecutionError) Error() string {
	if e.EffectIndex < 0 {
		return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("rule %q effect %d (%s): %v", e.Rule, e.EffectIndex, e.TargetField, e.Err)
}

func (e *RuleExecutionError) Unwrap() error { return e.Err }

// StateUpdateError reports a reentrant or malformed setState call.
type StateUpdateError struct {
	Reason error
}

func (e *StateUpdateError) Error() string {
	return fmt.Sprintf("state update rejected: %v", e.Reason)
}

func (e *StateUpdateError) Unwrap() error { return e.Reason }
