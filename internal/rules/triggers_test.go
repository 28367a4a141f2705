// internal/rules/triggers_test.go
package rules

import (
	"reflect"
	"testing"

	"github.com/formkeeper/formkeeper/internal/schema"
	"github.com/formkeeper/formkeeper/internal/types"
)

func triggerSchema(t *testing.T, fields []types.FieldDefinition) *schema.Schema {
	t.Helper()
	s, err := schema.New(fields)
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	return s
}

func TestResolveTriggers_DeclarationOrder(t *testing.T) {
	s := triggerSchema(t, []types.FieldDefinition{
		{
			Name: "quantity",
			Type: "number",
			Triggers: []types.Trigger{
				{Rule: "calc-subtotal", Conditions: []types.Condition{{Field: "quantity", When: types.WhenNotEmpty}}},
				{Rule: "calc-tax", Conditions: []types.Condition{{Field: "quantity", When: types.WhenNotEmpty}}},
				{Rule: "calc-total", Conditions: []types.Condition{{Field: "quantity", When: types.WhenNotEmpty}}},
			},
		},
	})

	ctx := &types.ExecutionContext{State: types.FormState{"quantity": float64(2)}}
	names, errs := ResolveTriggers("quantity", s, ctx)
	if len(errs) != 0 {
		t.Fatalf("ResolveTriggers() errs = %v, want none", errs)
	}
	want := []string{"calc-subtotal", "calc-tax", "calc-total"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("ResolveTriggers() = %v, want %v", names, want)
	}
}

func TestResolveTriggers_Dedupe(t *testing.T) {
	s := triggerSchema(t, []types.FieldDefinition{
		{
			Name: "a",
			Type: "number",
			Triggers: []types.Trigger{
				{Rule: "recalc", Conditions: []types.Condition{{Field: "a", When: types.WhenNotEmpty}}},
				{Rule: "recalc", Conditions: []types.Condition{{Field: "a", When: types.WhenGreaterThan, Value: float64(0)}}},
			},
		},
	})

	ctx := &types.ExecutionContext{State: types.FormState{"a": float64(5)}}
	names, _ := ResolveTriggers("a", s, ctx)
	if want := []string{"recalc"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ResolveTriggers() = %v, want %v", names, want)
	}
}

func TestResolveTriggers_ConditionGate(t *testing.T) {
	s := triggerSchema(t, []types.FieldDefinition{
		{
			Name: "status",
			Type: "string",
			Triggers: []types.Trigger{
				{Rule: "on-active", Conditions: []types.Condition{{Field: "status", When: types.WhenEqual, Value: "active"}}},
				{Rule: "on-any", Conditions: nil}, // vacuous pass
			},
		},
	})

	ctx := &types.ExecutionContext{State: types.FormState{"status": "inactive"}}
	names, _ := ResolveTriggers("status", s, ctx)
	if want := []string{"on-any"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ResolveTriggers() = %v, want %v", names, want)
	}
}

func TestResolveTriggers_CompoundAny(t *testing.T) {
	s := triggerSchema(t, []types.FieldDefinition{
		{Name: "a", Type: "number"},
		{
			Name: "b",
			Type: "number",
			Triggers: []types.Trigger{
				{
					Rule: "either",
					Mode: types.ModeAny,
					Conditions: []types.Condition{
						{Field: "a", When: types.WhenNotEmpty},
						{Field: "b", When: types.WhenNotEmpty},
					},
				},
			},
		},
	})

	ctx := &types.ExecutionContext{State: types.FormState{"b": float64(1)}}
	names, _ := ResolveTriggers("b", s, ctx)
	if want := []string{"either"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ResolveTriggers() = %v, want %v", names, want)
	}
}

func TestResolveTriggers_UnknownField(t *testing.T) {
	s := triggerSchema(t, []types.FieldDefinition{{Name: "a", Type: "number"}})

	names, errs := ResolveTriggers("nope", s, &types.ExecutionContext{State: types.FormState{}})
	if names != nil || errs != nil {
		t.Errorf("ResolveTriggers() = (%v, %v), want (nil, nil)", names, errs)
	}
}

func TestResolveTriggers_AdvisoryError(t *testing.T) {
	s := triggerSchema(t, []types.FieldDefinition{
		{
			Name: "a",
			Type: "string",
			Triggers: []types.Trigger{
				{Rule: "broken", Conditions: []types.Condition{{Field: "a", When: types.WhenMatches, Value: "("}}},
			},
		},
	})

	names, errs := ResolveTriggers("a", s, &types.ExecutionContext{State: types.FormState{"a": "x"}})
	if len(names) != 0 {
		t.Errorf("ResolveTriggers() = %v, want none (fail closed)", names)
	}
	if len(errs) != 1 {
		t.Errorf("ResolveTriggers() errs = %v, want one advisory error", errs)
	}
}
