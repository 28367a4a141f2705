// internal/form/handler.go
package form

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/formkeeper/formkeeper/internal/formstate"
	"github.com/formkeeper/formkeeper/internal/rules"
	"github.com/formkeeper/formkeeper/internal/schema"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Change handler: the public entry point of a form instance.
 *
 * One change cycle flows in a single direction: normalized edit -> raw
 * state update -> trigger resolution -> rule batch through the engine
 * queue -> display-condition overlay -> field validation -> result.
 * The ExecutionContext is constructed fresh per cycle and discarded;
 * it never leaks across cycles.
 *
 * Error policy: a broken rule degrades that rule's effect, not the
 * whole form. HandleChange never panics out of a cycle by default;
 * failures funnel to the OnError callback and the result's error list.
 * Strict mode returns the first collected failure for test harnesses.
 *
 * Everything a handler owns - registry, state manager, engine - is
 * constructed per instance. No process-wide state, so multiple
 * independent forms coexist and tests stay isolated.
 */

// Persister stores committed snapshots. Satisfied by *store.Store;
// nil disables persistence.
type Persister interface {
	SaveSnapshot(ctx context.Context, formID string, state types.FormState) (types.SnapshotID, error)
}

// Options tunes one form handler.
type Options struct {
	HistoryLimit int
	QueueSize    int
	JobTimeout   time.Duration
	CascadeDepth int
	// Strict makes HandleChange return the first collected failure
	// instead of degrading. Intended for test harnesses.
	Strict  bool
	OnError rules.ErrorFunc
	// Store persists each committed cycle's state when non-nil.
	Store  Persister
	FormID string
}

// Config assembles a form instance: schema, rules, initial state.
type Config struct {
	Fields  []types.FieldDefinition
	Rules   []types.RuleDefinition
	Initial types.FormState
	Options Options
}

// ChangeResult reports the outcome of one change cycle.
type ChangeResult struct {
	State         types.FormState
	Attributes    types.AttributeOverlay
	FieldErrors   map[string]string
	RulesExecuted []string
	Errors        []error
}

// Handler orchestrates one form instance.
type Handler struct {
	schema   *schema.Schema
	registry *rules.Registry
	state    *formstate.Manager
	engine   *rules.Engine
	opts     Options
	seq      atomic.Uint64
}

// New compiles legacy modifiers, validates the schema, registers every
// rule, and starts the execution engine.
func New(cfg Config) (*Handler, error) {
	fields, modifierRules := schema.CompileModifiers(cfg.Fields)

	s, err := schema.New(fields)
	if err != nil {
		return nil, err
	}

	registry := rules.NewRegistry()
	for _, rule := range cfg.Rules {
		if strings.HasPrefix(rule.Name, schema.ModifierRulePrefix) {
			return nil, &types.ValidationError{
				Subject: rule.Name,
				Reason:  fmt.Errorf("rule name prefix %q is reserved", schema.ModifierRulePrefix),
			}
		}
		if err := registry.Register(rule); err != nil {
			return nil, err
		}
	}
	for _, rule := range modifierRules {
		if err := registry.Register(rule); err != nil {
			return nil, err
		}
	}

	state := formstate.NewManager(cfg.Initial, cfg.Options.HistoryLimit)
	engine := rules.NewEngine(registry, s, state, rules.Options{
		QueueSize:    cfg.Options.QueueSize,
		JobTimeout:   cfg.Options.JobTimeout,
		CascadeDepth: cfg.Options.CascadeDepth,
		OnError:      cfg.Options.OnError,
	})

	return &Handler{
		schema:   s,
		registry: registry,
		state:    state,
		engine:   engine,
		opts:     cfg.Options,
	}, nil
}

// HandleRawChange normalizes a raw JSON event and runs a change cycle.
func (h *Handler) HandleRawChange(ctx context.Context, raw []byte) (*ChangeResult, error) {
	ev, err := NormalizeEvent(raw)
	if err != nil {
		return nil, err
	}
	return h.HandleChange(ctx, ev)
}

// HandleChange runs one full change cycle and returns the committed
// state, the merged attribute overlay, per-field validation errors, and
// every engine failure collected along the way.
func (h *Handler) HandleChange(ctx context.Context, ev ChangeEvent) (*ChangeResult, error) {
	ec := &types.ExecutionContext{
		ID:         types.NewExecutionID(),
		Seq:        h.seq.Add(1),
		FieldName:  ev.Name,
		FieldValue: ev.Value,
		Timestamp:  time.Now(),
	}

	var collected []error
	report := func(err error) {
		collected = append(collected, err)
		if h.opts.OnError != nil {
			h.opts.OnError(err, ec)
		}
	}

	// Raw field edit commits first; rules see the post-edit state.
	if err := h.state.Merge(types.FormState{ev.Name: ev.Value}, nil); err != nil {
		report(err)
	}
	ec.State = h.state.Snapshot()

	names, trigErrs := rules.ResolveTriggers(ev.Name, h.schema, ec)
	for _, err := range trigErrs {
		report(err)
	}

	result := &ChangeResult{}
	if len(names) > 0 {
		res, err := h.engine.ExecuteAll(ctx, names, ec)
		if err != nil {
			// Queue full, engine closed, or caller gone: the edit is
			// committed, the rules are not.
			report(err)
		} else {
			result.RulesExecuted = res.Executed
			collected = append(collected, res.Errors...)
		}
	}

	finalState := h.state.Snapshot()
	result.State = finalState
	result.Attributes = h.mergedAttributes(finalState, report)
	result.FieldErrors = h.schema.ValidateValues(finalState, result.Attributes)

	if h.opts.Store != nil {
		if _, err := h.opts.Store.SaveSnapshot(ctx, h.opts.FormID, finalState); err != nil {
			log.Printf("form: snapshot persistence failed: %v", err)
			report(err)
		}
	}

	result.Errors = collected
	if h.opts.Strict && len(collected) > 0 {
		return result, collected[0]
	}
	return result, nil
}

// mergedAttributes layers rule-produced attribute patches over the
// display-condition overlay: explicit effects win over derived state.
func (h *Handler) mergedAttributes(state types.FormState, report func(error)) types.AttributeOverlay {
	display, errs := h.schema.DisplayOverlay(state)
	for _, err := range errs {
		report(err)
	}
	merged := display
	merged.MergeFrom(h.state.Overlay())
	return merged
}

// State returns the committed form state.
func (h *Handler) State() types.FormState {
	return h.state.Snapshot()
}

// Attributes returns the merged attribute overlay for the current state.
func (h *Handler) Attributes() types.AttributeOverlay {
	return h.mergedAttributes(h.state.Snapshot(), func(err error) {
		if h.opts.OnError != nil {
			h.opts.OnError(err, nil)
		}
	})
}

// Validate re-runs field validation against the current state.
func (h *Handler) Validate() map[string]string {
	state := h.state.Snapshot()
	return h.schema.ValidateValues(state, h.Attributes())
}

// Subscribe registers a state listener; see formstate.Manager.
func (h *Handler) Subscribe(l formstate.Listener) int {
	return h.state.Subscribe(l)
}

// Unsubscribe removes a state listener.
func (h *Handler) Unsubscribe(id int) {
	h.state.Unsubscribe(id)
}

// Undo restores the previous committed state.
func (h *Handler) Undo() bool { return h.state.Undo() }

// Redo re-applies the most recently undone state.
func (h *Handler) Redo() bool { return h.state.Redo() }

// Registry exposes the rule registry for runtime registration.
func (h *Handler) Registry() *rules.Registry { return h.registry }

// ReloadRules replaces the registered rule set from a reloaded document:
// user rules re-register last-write-wins, modifier rules recompile from
// the field tree, and names absent from the new document are
// unregistered so deleted rules cannot fire through unchanged triggers.
// The schema itself is not reloaded; field structure changes require a
// new handler. Returns the unregistered names and any per-rule failures.
func (h *Handler) ReloadRules(fields []types.FieldDefinition, defs []types.RuleDefinition) (removed []string, errs []error) {
	keep := make(map[string]bool)
	for _, rule := range defs {
		if strings.HasPrefix(rule.Name, schema.ModifierRulePrefix) {
			errs = append(errs, &types.ValidationError{
				Subject: rule.Name,
				Reason:  fmt.Errorf("rule name prefix %q is reserved", schema.ModifierRulePrefix),
			})
			continue
		}
		if err := h.registry.Register(rule); err != nil {
			errs = append(errs, err)
			continue
		}
		keep[rule.Name] = true
	}

	_, modifierRules := schema.CompileModifiers(fields)
	for _, rule := range modifierRules {
		if err := h.registry.Register(rule); err != nil {
			errs = append(errs, err)
			continue
		}
		keep[rule.Name] = true
	}

	for _, name := range h.registry.Names() {
		if !keep[name] {
			h.registry.Unregister(name)
			removed = append(removed, name)
		}
	}
	return removed, errs
}

// Close shuts down the execution engine after draining its queue.
func (h *Handler) Close() {
	h.engine.Close()
}
