// internal/conditions/evaluate_test.go
package conditions

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/formkeeper/formkeeper/internal/types"
)

func TestEvaluate_Comparators(t *testing.T) {
	tests := []struct {
		name  string
		when  types.ConditionWhen
		value any
		bound any
		want  bool
	}{
		{"true on true", types.WhenTrue, true, nil, true},
		{"true on false", types.WhenTrue, false, nil, false},
		{"true on truthy string", types.WhenTrue, "true", nil, false},
		{"false on false", types.WhenFalse, false, nil, true},
		{"false on nil", types.WhenFalse, nil, nil, false},
		{"empty on nil", types.WhenEmpty, nil, nil, true},
		{"empty on empty string", types.WhenEmpty, "", nil, true},
		{"empty on zero is false", types.WhenEmpty, float64(0), nil, false},
		{"empty on false is false", types.WhenEmpty, false, nil, false},
		{"not-empty on zero", types.WhenNotEmpty, float64(0), nil, true},
		{"not-empty on empty string", types.WhenNotEmpty, "", nil, false},
		{"null on nil", types.WhenNull, nil, nil, true},
		{"null on empty string is false", types.WhenNull, "", nil, false},
		{"not-null on empty string", types.WhenNotNull, "", nil, true},
		{"equal strings", types.WhenEqual, "a", "a", true},
		{"equal mixed numerics", types.WhenEqual, float64(5), 5, true},
		{"equal type-sensitive", types.WhenEqual, "5", float64(5), false},
		{"not-equal", types.WhenNotEqual, "a", "b", true},
		{"less-than", types.WhenLessThan, float64(3), float64(5), true},
		{"less-than equal is false", types.WhenLessThan, float64(5), float64(5), false},
		{"less-than non-numeric", types.WhenLessThan, "abc", float64(5), false},
		{"greater-than", types.WhenGreaterThan, float64(7), float64(5), true},
		{"between lower bound inclusive", types.WhenBetween, float64(10), []any{float64(10), float64(20)}, true},
		{"between upper bound inclusive", types.WhenBetween, float64(20), []any{float64(10), float64(20)}, true},
		{"between outside", types.WhenBetween, float64(21), []any{float64(10), float64(20)}, false},
		{"matches", types.WhenMatches, "abc123", `^[a-z]+\d+$`, true},
		{"matches negative", types.WhenMatches, "123abc", `^[a-z]+\d+$`, false},
		{"not-matches", types.WhenNotMatches, "123abc", `^[a-z]+\d+$`, true},
		{"unknown comparator fails closed", types.ConditionWhen("bogus"), true, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(types.Condition{Field: "f", When: tt.when, Value: tt.bound}, tt.value)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_BadRange(t *testing.T) {
	got, err := Evaluate(types.Condition{When: types.WhenBetween, Value: []any{float64(1)}}, float64(5))
	if !errors.Is(err, types.ErrBadRange) {
		t.Fatalf("Evaluate() error = %v, want ErrBadRange", err)
	}
	if got {
		t.Errorf("Evaluate() = true, want fail-closed false")
	}
}

func TestEvaluate_BadPattern(t *testing.T) {
	got, err := Evaluate(types.Condition{When: types.WhenMatches, Value: "("}, "anything")
	if !errors.Is(err, types.ErrBadPattern) {
		t.Fatalf("Evaluate() error = %v, want ErrBadPattern", err)
	}
	if got {
		t.Errorf("Evaluate() = true, want fail-closed false")
	}
}

func TestEvaluate_UncomparableValues(t *testing.T) {
	// Maps and slices must not panic under equality.
	got, err := Evaluate(
		types.Condition{When: types.WhenEqual, Value: map[string]any{"a": 1}},
		map[string]any{"a": 1},
	)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if got {
		t.Errorf("Evaluate() = true, want false for uncomparable operands")
	}
}

func TestEvaluateSet_Modes(t *testing.T) {
	state := types.FormState{"a": float64(1), "b": ""}

	tests := []struct {
		name  string
		mode  types.ConditionMode
		conds []types.Condition
		want  bool
	}{
		{
			name: "all passes",
			mode: types.ModeAll,
			conds: []types.Condition{
				{Field: "a", When: types.WhenNotEmpty},
				{Field: "a", When: types.WhenGreaterThan, Value: float64(0)},
			},
			want: true,
		},
		{
			name: "all fails on one",
			mode: types.ModeAll,
			conds: []types.Condition{
				{Field: "a", When: types.WhenNotEmpty},
				{Field: "b", When: types.WhenNotEmpty},
			},
			want: false,
		},
		{
			name: "any passes on one",
			mode: types.ModeAny,
			conds: []types.Condition{
				{Field: "b", When: types.WhenNotEmpty},
				{Field: "a", When: types.WhenNotEmpty},
			},
			want: true,
		},
		{
			name: "any fails on all",
			mode: types.ModeAny,
			conds: []types.Condition{
				{Field: "b", When: types.WhenNotEmpty},
				{Field: "missing", When: types.WhenNotEmpty},
			},
			want: false,
		},
		{"empty list vacuous all", types.ModeAll, nil, true},
		{"empty list vacuous any", types.ModeAny, nil, true},
		{
			name:  "default mode is all",
			mode:  "",
			conds: []types.Condition{{Field: "b", When: types.WhenNotEmpty}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateSet(tt.conds, tt.mode, state)
			if err != nil {
				t.Fatalf("EvaluateSet() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateSet() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateSet_AdvisoryError(t *testing.T) {
	state := types.FormState{"a": "x"}
	conds := []types.Condition{
		{Field: "a", When: types.WhenMatches, Value: "("},
		{Field: "a", When: types.WhenNotEmpty},
	}

	got, err := EvaluateSet(conds, types.ModeAny, state)
	if !errors.Is(err, types.ErrBadPattern) {
		t.Fatalf("EvaluateSet() error = %v, want ErrBadPattern", err)
	}
	// The broken condition fails closed; the second still satisfies any.
	if !got {
		t.Errorf("EvaluateSet() = false, want true")
	}
}

// Property-based test: evaluation is deterministic and never panics.
func TestEvaluate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	comparators := []types.ConditionWhen{
		types.WhenTrue, types.WhenFalse, types.WhenEmpty, types.WhenNotEmpty,
		types.WhenNull, types.WhenNotNull, types.WhenEqual, types.WhenNotEqual,
		types.WhenLessThan, types.WhenGreaterThan, types.WhenBetween,
		types.WhenMatches, types.WhenNotMatches,
	}

	properties.Property("evaluation never panics and is deterministic", prop.ForAll(
		func(whenIdx int, value float64, bound string) bool {
			cond := types.Condition{Field: "f", When: comparators[whenIdx], Value: bound}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Evaluate() panicked: %v", r)
				}
			}()

			r1, e1 := Evaluate(cond, value)
			r2, e2 := Evaluate(cond, value)
			if r1 != r2 {
				return false
			}
			return (e1 == nil) == (e2 == nil)
		},
		gen.IntRange(0, len(comparators)-1),
		gen.Float64Range(-1e6, 1e6),
		gen.AlphaString(),
	))

	properties.Property("negated comparators are complements", prop.ForAll(
		func(a float64, b float64) bool {
			eq, _ := Evaluate(types.Condition{When: types.WhenEqual, Value: b}, a)
			ne, _ := Evaluate(types.Condition{When: types.WhenNotEqual, Value: b}, a)
			return eq != ne
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
