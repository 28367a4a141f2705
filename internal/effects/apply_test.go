// internal/effects/apply_test.go
package effects

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/formkeeper/formkeeper/internal/types"
)

func TestApply_Arithmetic(t *testing.T) {
	tests := []struct {
		name    string
		effect  types.EffectDefinition
		state   types.FormState
		want    float64
		wantErr error
	}{
		{
			name:   "add to existing value",
			effect: types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: float64(5)},
			state:  types.FormState{"total": float64(10)},
			want:   15,
		},
		{
			name:   "add to absent field defaults to zero",
			effect: types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: float64(5)},
			state:  types.FormState{},
			want:   5,
		},
		{
			name:   "subtract",
			effect: types.EffectDefinition{TargetField: "total", Type: types.EffectSubtract, Value: float64(3)},
			state:  types.FormState{"total": float64(10)},
			want:   7,
		},
		{
			name:   "multiply",
			effect: types.EffectDefinition{TargetField: "total", Type: types.EffectMultiply, Value: float64(4)},
			state:  types.FormState{"total": float64(10)},
			want:   40,
		},
		{
			name:   "divide",
			effect: types.EffectDefinition{TargetField: "total", Type: types.EffectDivide, Value: float64(4)},
			state:  types.FormState{"total": float64(10)},
			want:   2.5,
		},
		{
			name:    "divide by zero",
			effect:  types.EffectDefinition{TargetField: "total", Type: types.EffectDivide, Value: float64(0)},
			state:   types.FormState{"total": float64(10)},
			wantErr: types.ErrDivisionByZero,
		},
		{
			name:   "numeric string operand coerces",
			effect: types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: "5"},
			state:  types.FormState{"total": float64(10)},
			want:   15,
		},
		{
			name:    "non-numeric operand fails",
			effect:  types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: "abc"},
			state:   types.FormState{"total": float64(10)},
			wantErr: types.ErrCoercionFailed,
		},
		{
			name:    "boolean operand rejected",
			effect:  types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: true},
			state:   types.FormState{"total": float64(10)},
			wantErr: types.ErrCoercionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := Apply(tt.effect, tt.state)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v, want nil", err)
			}
			if patch.Value != tt.want {
				t.Errorf("Apply() = %v, want %v", patch.Value, tt.want)
			}
		})
	}
}

// Effect order must be observable: (10 + 5) * 2 is 30, not 10*2 + 5.
func TestApply_OrderSensitivity(t *testing.T) {
	state := types.FormState{"total": float64(10)}

	p1, err := Apply(types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: float64(5)}, state)
	if err != nil {
		t.Fatalf("Apply(add) error = %v", err)
	}
	state["total"] = p1.Value

	p2, err := Apply(types.EffectDefinition{TargetField: "total", Type: types.EffectMultiply, Value: float64(2)}, state)
	if err != nil {
		t.Fatalf("Apply(multiply) error = %v", err)
	}
	if p2.Value != float64(30) {
		t.Errorf("sequenced result = %v, want 30", p2.Value)
	}
}

func TestApply_Replace(t *testing.T) {
	tests := []struct {
		name   string
		effect types.EffectDefinition
		want   any
	}{
		{
			name:   "raw replace keeps operand type",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectReplace, Value: float64(7)},
			want:   float64(7),
		},
		{
			name:   "string kind coerces number",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectReplace, Kind: types.KindString, Value: float64(7)},
			want:   "7",
		},
		{
			name:   "number kind coerces string",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectReplace, Kind: types.KindNumber, Value: "7.5"},
			want:   float64(7.5),
		},
		{
			name:   "strictString wins over raw",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectReplace, StrictString: true, Value: float64(7)},
			want:   "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := Apply(tt.effect, types.FormState{})
			if err != nil {
				t.Fatalf("Apply() error = %v, want nil", err)
			}
			if patch.Value != tt.want {
				t.Errorf("Apply() = %v (%T), want %v (%T)", patch.Value, patch.Value, tt.want, tt.want)
			}
		})
	}
}

func TestApply_ConcatSourceFields(t *testing.T) {
	state := types.FormState{"first": "Jane", "last": "Doe"}
	effect := types.EffectDefinition{
		TargetField: "full",
		Type:        types.EffectConcat,
		SourceFields: []types.SourceField{
			{Field: "first"},
			{Field: "last", CharBefore: " "},
		},
	}

	patch, err := Apply(effect, state)
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if patch.Value != "Jane Doe" {
		t.Errorf("Apply() = %q, want %q", patch.Value, "Jane Doe")
	}
}

func TestApply_ConcatNumericInference(t *testing.T) {
	tests := []struct {
		name   string
		effect types.EffectDefinition
		state  types.FormState
		want   any
	}{
		{
			name:   "two numerics add",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectConcat, Value: float64(2)},
			state:  types.FormState{"f": float64(3)},
			want:   float64(5),
		},
		{
			name:   "strictString forces concatenation",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectConcat, Value: float64(2), StrictString: true},
			state:  types.FormState{"f": float64(3)},
			want:   "32",
		},
		{
			name:   "string kind forces concatenation",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectConcat, Value: float64(2), Kind: types.KindString},
			state:  types.FormState{"f": float64(3)},
			want:   "32",
		},
		{
			name:   "string operand concatenates",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectConcat, Value: "b"},
			state:  types.FormState{"f": "a"},
			want:   "ab",
		},
		{
			name:   "absent current renders empty",
			effect: types.EffectDefinition{TargetField: "f", Type: types.EffectConcat, Value: "x"},
			state:  types.FormState{},
			want:   "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := Apply(tt.effect, tt.state)
			if err != nil {
				t.Fatalf("Apply() error = %v, want nil", err)
			}
			if patch.Value != tt.want {
				t.Errorf("Apply() = %v (%T), want %v (%T)", patch.Value, patch.Value, tt.want, tt.want)
			}
		})
	}
}

func TestApply_AttributePatch(t *testing.T) {
	effect := types.EffectDefinition{
		TargetField: "email",
		Prop:        "hidden",
		Type:        types.EffectReplace,
		Value:       true,
	}

	patch, err := Apply(effect, types.FormState{"email": "x@y"})
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if patch.IsValue() {
		t.Errorf("IsValue() = true, want attribute patch")
	}
	if patch.Prop != "hidden" || patch.Value != true {
		t.Errorf("patch = %+v, want hidden=true", patch)
	}
}

func TestApply_UnknownEffectType(t *testing.T) {
	_, err := Apply(types.EffectDefinition{TargetField: "f", Type: "explode"}, types.FormState{})
	if !errors.Is(err, types.ErrUnknownEffectType) {
		t.Fatalf("Apply() error = %v, want ErrUnknownEffectType", err)
	}
}

func TestApply_PureSnapshot(t *testing.T) {
	state := types.FormState{"total": float64(10)}
	_, err := Apply(types.EffectDefinition{TargetField: "total", Type: types.EffectAdd, Value: float64(5)}, state)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if state["total"] != float64(10) {
		t.Errorf("Apply() mutated snapshot: total = %v, want 10", state["total"])
	}
}

// Property-based test: replace is idempotent, add/subtract round-trips.
func TestApply_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("replace is idempotent", prop.ForAll(
		func(v float64) bool {
			effect := types.EffectDefinition{TargetField: "f", Type: types.EffectReplace, Value: v}
			state := types.FormState{}

			p1, err := Apply(effect, state)
			if err != nil {
				return false
			}
			state["f"] = p1.Value
			p2, err := Apply(effect, state)
			if err != nil {
				return false
			}
			return p1.Value == p2.Value
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("add then subtract restores the value", prop.ForAll(
		// Integer-valued operands keep float arithmetic exact.
		func(baseInt int, deltaInt int) bool {
			base := float64(baseInt)
			delta := float64(deltaInt)
			state := types.FormState{"f": base}

			p1, err := Apply(types.EffectDefinition{TargetField: "f", Type: types.EffectAdd, Value: delta}, state)
			if err != nil {
				return false
			}
			state["f"] = p1.Value
			p2, err := Apply(types.EffectDefinition{TargetField: "f", Type: types.EffectSubtract, Value: delta}, state)
			if err != nil {
				return false
			}
			return p2.Value == base
		},
		gen.IntRange(-1000000, 1000000),
		gen.IntRange(-1000000, 1000000),
	))

	properties.TestingRun(t)
}
