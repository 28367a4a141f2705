// Package types provides domain models shared across FormKeeper components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library so embedding consumers pull in nothing extra. ID utilities in
// ids.go import uuid but are isolated for selective inclusion.
//
// All definitions here are wire-format agnostic: JSON tags describe the
// form-document surface syntax, but nothing in this package performs I/O.
package types

import "time"

// FormState is the single source-of-truth mapping of field name to
// current value. Owned exclusively by the state manager; every other
// component receives defensive copies or proposes deltas.
type FormState map[string]any

// ConditionMode selects how a list of conditions combines.
type ConditionMode string

const (
	// ModeAll requires every condition to hold (logical AND).
	ModeAll ConditionMode = "all"
	// ModeAny requires at least one condition to hold (logical OR).
	ModeAny ConditionMode = "any"
)

// ConditionWhen is the fixed comparator vocabulary for conditions.
// Unknown values evaluate fail-closed to false rather than erroring,
// so a malformed document degrades to "condition not met".
type ConditionWhen string

const (
	WhenTrue        ConditionWhen = "true"
	WhenFalse       ConditionWhen = "false"
	WhenEmpty       ConditionWhen = "empty"
	WhenNotEmpty    ConditionWhen = "not-empty"
	WhenNull        ConditionWhen = "null"
	WhenNotNull     ConditionWhen = "not-null"
	WhenEqual       ConditionWhen = "equal"
	WhenNotEqual    ConditionWhen = "not-equal"
	WhenLessThan    ConditionWhen = "less-than"
	WhenGreaterThan ConditionWhen = "greater-than"
	WhenBetween     ConditionWhen = "between"
	WhenMatches     ConditionWhen = "matches"
	WhenNotMatches  ConditionWhen = "not-matches"
)

// Condition is a predicate over a single field's current value.
// For "between" Value must be a two-element [min, max] sequence.
// For "matches"/"not-matches" Value is compiled as a regular expression.
type Condition struct {
	Field string        `json:"field"`
	When  ConditionWhen `json:"when"`
	Value any           `json:"value,omitempty"`
}

// ConditionSet is an ordered list of conditions plus a combination mode.
// An empty Conditions list evaluates to true in either mode (vacuous
// pass); callers that do not want that must guard before evaluating.
type ConditionSet struct {
	Mode       ConditionMode `json:"mode,omitempty"` // defaults to "all"
	Conditions []Condition   `json:"conditions"`
}

// Trigger binds a condition (single or compound) declared on a field to
// a named rule. Triggers fire during the change cycle of the field they
// are declared on.
type Trigger struct {
	Rule       string        `json:"rule"`
	Mode       ConditionMode `json:"mode,omitempty"`
	Conditions []Condition   `json:"conditions"`
}

// EffectType is the closed set of effect operators.
type EffectType string

const (
	EffectAdd      EffectType = "add"
	EffectSubtract EffectType = "subtract"
	EffectMultiply EffectType = "multiply"
	EffectDivide   EffectType = "divide"
	EffectReplace  EffectType = "replace"
	EffectConcat   EffectType = "concat"
)

// EffectKind selects numeric vs string semantics for an effect operand.
type EffectKind string

const (
	KindNumber EffectKind = "number"
	KindString EffectKind = "string"
)

// PropValue is the default effect property: the field's value itself.
// Any other property ("hidden", "readOnly", "title", "required", ...)
// targets the field's rendering-attribute overlay instead.
const PropValue = "value"

// SourceField names one operand of a multi-field concatenation,
// optionally wrapped with literal text before and after its value.
type SourceField struct {
	Field      string `json:"field"`
	CharBefore string `json:"charBefore,omitempty"`
	CharAfter  string `json:"charAfter,omitempty"`
}

// EffectDefinition is one atomic state or attribute mutation instruction
// within a rule. TargetField must reference a field reachable in the
// form schema; effects against unknown fields are reported and skipped.
type EffectDefinition struct {
	TargetField  string        `json:"targetField"`
	Prop         string        `json:"prop,omitempty"` // defaults to "value"
	Type         EffectType    `json:"type"`
	Kind         EffectKind    `json:"kind,omitempty"`
	Value        any           `json:"value,omitempty"`
	SourceFields []SourceField `json:"sourceFields,omitempty"`
	StrictString bool          `json:"strictString,omitempty"`
}

// RuleDefinition is a named, reusable, ordered list of effects.
// Names are unique across a registry; re-registration replaces
// (last-write-wins, documented registry behavior).
type RuleDefinition struct {
	Name      string             `json:"name"`
	Priority  int                `json:"priority,omitempty"`
	Condition *ConditionSet      `json:"condition,omitempty"`
	Effects   []EffectDefinition `json:"effects"`
}

// Modifier is the legacy field-level surface syntax. It compiles down
// to a RuleDefinition plus a synthesized trigger at load time; there is
// no second execution path. Target defaults to the declaring field.
type Modifier struct {
	Target       string        `json:"target,omitempty"`
	Prop         string        `json:"prop,omitempty"`
	Type         EffectType    `json:"type"`
	Kind         EffectKind    `json:"kind,omitempty"`
	Value        any           `json:"value,omitempty"`
	SourceFields []SourceField `json:"sourceFields,omitempty"`
	StrictString bool          `json:"strictString,omitempty"`
	When         *Condition    `json:"when,omitempty"`
}

// DisplayConditions drives conditional visibility and read-only state
// for a field. Each predicate list combines under Mode.
type DisplayConditions struct {
	Mode         ConditionMode `json:"mode,omitempty"`
	HiddenWhen   []Condition   `json:"hiddenWhen,omitempty"`
	ReadOnlyWhen []Condition   `json:"readOnlyWhen,omitempty"`
}

// FieldDefinition describes one input in the form schema. A field with
// nested Fields is a container (subform or array); its own value is a
// mapping or sequence of child values. Name must be unique within a
// sibling scope.
type FieldDefinition struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Title      string             `json:"title,omitempty"`
	Required   bool               `json:"required,omitempty"`
	Pattern    string             `json:"pattern,omitempty"`
	Min        *float64           `json:"min,omitempty"`
	Max        *float64           `json:"max,omitempty"`
	Conditions *DisplayConditions `json:"conditions,omitempty"`
	Triggers   []Trigger          `json:"triggers,omitempty"`
	Modifiers  []Modifier         `json:"modifiers,omitempty"`
	Fields     []FieldDefinition  `json:"fields,omitempty"`
}

// ExecutionContext is ephemeral per-change-cycle state handed to the
// trigger resolver and execution engine. Never persisted or cached; its
// lifetime is exactly one change cycle.
type ExecutionContext struct {
	ID         ExecutionID // time-ordered cycle identifier
	Seq        uint64      // monotonically increasing per handler
	FieldName  string      // field that initiated this cycle
	FieldValue any         // post-edit value of that field
	State      FormState   // post-edit snapshot
	Timestamp  time.Time
}

// Resource limits enforced at registration and execution time to keep
// a single malformed document from degrading the whole form.
const (
	// MaxSchemaDepth bounds recursive descent through nested subform
	// fields. 16 levels matches deeply nested documents without risking
	// stack growth on adversarial input.
	MaxSchemaDepth = 16

	// MaxEffectsPerRule bounds per-rule work so one rule cannot stall
	// the execution queue.
	MaxEffectsPerRule = 64

	// MaxQueueDepth bounds the engine's FIFO execution queue. Beyond
	// this, submissions fail fast with ErrQueueFull instead of growing
	// without bound under a change storm.
	MaxQueueDepth = 1024

	// DefaultHistoryLimit is the undo/redo depth retained by the state
	// manager. Oldest snapshots evict first (FIFO).
	DefaultHistoryLimit = 50

	// MaxCascadeDepth caps bounded cascading re-evaluation when it is
	// enabled. Cascades past this depth are reported and dropped.
	MaxCascadeDepth = 8
)
