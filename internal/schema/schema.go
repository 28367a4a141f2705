// internal/schema/schema.go
package schema

import (
	"fmt"

	"github.com/formkeeper/formkeeper/internal/conditions"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Form schema: the FieldDefinition tree and queries over it.
 *
 * Validation enforces structural invariants at construction time:
 * unique names within each sibling scope, non-empty names, nesting
 * bounded by MaxSchemaDepth. Moving error detection to construction
 * keeps the per-change path free of structural checks.
 *
 * Field lookup is recursive descent through nested subform/array
 * containers with first-match semantics. The flattened name index is
 * built once at construction; the tree itself stays read-mostly
 * configuration for the lifetime of the form.
 *
 * DisplayOverlay evaluates hiddenWhen/readOnlyWhen predicate lists into
 * an attribute overlay. Evaluation errors (bad patterns) are advisory:
 * the predicate fails closed and the error is surfaced for reporting.
 */

// Schema is the validated field-definition tree plus a flat name index.
type Schema struct {
	fields []types.FieldDefinition
	index  map[string]*types.FieldDefinition
}

// New validates the field tree and builds the lookup index.
// Returns a ValidationError naming the offending field on failure.
func New(fields []types.FieldDefinition) (*Schema, error) {
	s := &Schema{
		fields: fields,
		index:  make(map[string]*types.FieldDefinition),
	}
	if err := s.indexFields(s.fields, 1); err != nil {
		return nil, err
	}
	return s, nil
}

// indexFields walks one sibling scope, checking uniqueness and depth,
// then descends into container fields.
func (s *Schema) indexFields(fields []types.FieldDefinition, depth int) error {
	if depth > types.MaxSchemaDepth {
		return &types.ValidationError{Subject: "schema", Reason: types.ErrSchemaTooDeep}
	}

	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.Name == "" {
			return &types.ValidationError{Subject: f.Title, Reason: fmt.Errorf("field name is empty")}
		}
		if seen[f.Name] {
			return &types.ValidationError{Subject: f.Name, Reason: types.ErrDuplicateFieldName}
		}
		seen[f.Name] = true

		// First match wins across scopes; effect targets resolve against
		// the flattened index.
		if _, ok := s.index[f.Name]; !ok {
			s.index[f.Name] = f
		}

		if len(f.Fields) > 0 {
			if err := s.indexFields(f.Fields, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Find locates a field definition by name anywhere in the tree.
func (s *Schema) Find(name string) (*types.FieldDefinition, bool) {
	f, ok := s.index[name]
	return f, ok
}

// Has reports whether the name is reachable in the schema.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Fields returns the root of the definition tree.
func (s *Schema) Fields() []types.FieldDefinition {
	return s.fields
}

// Names returns every reachable field name. Order is unspecified.
func (s *Schema) Names() []string {
	out := make([]string, 0, len(s.index))
	for name := range s.index {
		out = append(out, name)
	}
	return out
}

// DisplayOverlay evaluates every field's hiddenWhen/readOnlyWhen
// predicates against the state snapshot and returns the resulting
// attribute overlay. Advisory evaluation errors are collected; the
// overlay reflects fail-closed results.
func (s *Schema) DisplayOverlay(state types.FormState) (types.AttributeOverlay, []error) {
	overlay := make(types.AttributeOverlay)
	var errs []error

	walkFields(s.fields, func(f *types.FieldDefinition) {
		dc := f.Conditions
		if dc == nil {
			return
		}
		if len(dc.HiddenWhen) > 0 {
			hidden, err := conditions.EvaluateSet(dc.HiddenWhen, dc.Mode, state)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %q hiddenWhen: %w", f.Name, err))
			}
			overlay.Set(f.Name, "hidden", hidden)
		}
		if len(dc.ReadOnlyWhen) > 0 {
			readOnly, err := conditions.EvaluateSet(dc.ReadOnlyWhen, dc.Mode, state)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %q readOnlyWhen: %w", f.Name, err))
			}
			overlay.Set(f.Name, "readOnly", readOnly)
		}
	})

	return overlay, errs
}

// walkFields visits every field in declaration order, containers before
// their children.
func walkFields(fields []types.FieldDefinition, visit func(*types.FieldDefinition)) {
	for i := range fields {
		visit(&fields[i])
		if len(fields[i].Fields) > 0 {
			walkFields(fields[i].Fields, visit)
		}
	}
}
