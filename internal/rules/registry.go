// internal/rules/registry.go
package rules

import (
	"sort"
	"sync"

	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Named rule storage.
 *
 * Explicitly constructed, caller-owned instance - never a process-wide
 * singleton - so multiple independent forms coexist in one process and
 * tests stay isolated.
 *
 * Re-registering an existing name replaces the stored rule
 * (last-write-wins). This is documented behavior, not an accident:
 * hot-reloaded form documents overwrite their previous rules in place.
 */

// Registry holds validated, normalized rule definitions keyed by name.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]types.RuleDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]types.RuleDefinition)}
}

// Register validates, normalizes, and stores a rule. An existing rule
// with the same name is replaced (last-write-wins).
func (r *Registry) Register(rule types.RuleDefinition) error {
	if err := Validate(rule); err != nil {
		return err
	}
	rule = Normalize(rule)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.Name] = rule
	return nil
}

// Get returns the rule stored under name.
func (r *Registry) Get(name string) (types.RuleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	return rule, ok
}

// Has reports whether a rule is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[name]
	return ok
}

// Unregister removes a rule. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, name)
}

// Clear removes every rule.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = make(map[string]types.RuleDefinition)
}

// Len reports the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Names returns registered rule names, sorted for deterministic output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for name := range r.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
