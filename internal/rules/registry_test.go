// internal/rules/registry_test.go
package rules

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/formkeeper/formkeeper/internal/types"
)

func validRule(name string) types.RuleDefinition {
	return types.RuleDefinition{
		Name: name,
		Effects: []types.EffectDefinition{
			{TargetField: "total", Type: types.EffectAdd, Value: float64(1)},
		},
	}
}

func TestValidate(t *testing.T) {
	tooMany := make([]types.EffectDefinition, types.MaxEffectsPerRule+1)
	for i := range tooMany {
		tooMany[i] = types.EffectDefinition{TargetField: "f", Type: types.EffectAdd, Value: float64(1)}
	}

	tests := []struct {
		name    string
		rule    types.RuleDefinition
		wantErr error
	}{
		{"valid", validRule("ok"), nil},
		{"empty name", types.RuleDefinition{Effects: validRule("x").Effects}, types.ErrEmptyRuleName},
		{"no effects", types.RuleDefinition{Name: "r"}, types.ErrNoEffects},
		{"too many effects", types.RuleDefinition{Name: "r", Effects: tooMany}, types.ErrTooManyEffects},
		{
			name: "empty target field",
			rule: types.RuleDefinition{Name: "r", Effects: []types.EffectDefinition{
				{Type: types.EffectAdd, Value: float64(1)},
			}},
			wantErr: types.ErrEmptyTargetField,
		},
		{
			name: "unknown effect type",
			rule: types.RuleDefinition{Name: "r", Effects: []types.EffectDefinition{
				{TargetField: "f", Type: "explode"},
			}},
			wantErr: types.ErrUnknownEffectType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Validate() error type = %T, want *ValidationError", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	rule := types.RuleDefinition{
		Name: "r",
		Condition: &types.ConditionSet{
			Conditions: []types.Condition{{Field: "a", When: types.WhenNotEmpty}},
		},
		Effects: []types.EffectDefinition{
			{TargetField: "f", Type: types.EffectAdd, Value: float64(1)},
		},
	}

	got := Normalize(rule)
	if got.Effects[0].Prop != types.PropValue {
		t.Errorf("Prop = %q, want %q", got.Effects[0].Prop, types.PropValue)
	}
	if got.Condition.Mode != types.ModeAll {
		t.Errorf("Condition.Mode = %q, want %q", got.Condition.Mode, types.ModeAll)
	}
	// Input must not be mutated.
	if rule.Condition.Mode != "" {
		t.Errorf("Normalize() mutated input condition mode")
	}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	reg := NewRegistry()

	first := validRule("price")
	if err := reg.Register(first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	second := validRule("price")
	second.Effects[0].Value = float64(99)
	if err := reg.Register(second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := reg.Get("price")
	if !ok {
		t.Fatalf("Get() ok = false, want true")
	}
	if got.Effects[0].Value != float64(99) {
		t.Errorf("Get() value = %v, want replacement 99", got.Effects[0].Value)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(types.RuleDefinition{Name: "bad"}); !errors.Is(err, types.ErrNoEffects) {
		t.Fatalf("Register() error = %v, want ErrNoEffects", err)
	}
	if reg.Has("bad") {
		t.Errorf("Has() = true, invalid rule must not be stored")
	}
}

func TestRegistry_UnregisterAndClear(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 3; i++ {
		if err := reg.Register(validRule(fmt.Sprintf("r%d", i))); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	reg.Unregister("r1")
	if reg.Has("r1") {
		t.Errorf("Has(r1) = true after Unregister")
	}
	reg.Unregister("missing") // no-op

	if want := []string{"r0", "r2"}; !reflect.DeepEqual(reg.Names(), want) {
		t.Errorf("Names() = %v, want %v", reg.Names(), want)
	}

	reg.Clear()
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", reg.Len())
	}
}
