// internal/rules/engine.go
package rules

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/formkeeper/formkeeper/internal/conditions"
	"github.com/formkeeper/formkeeper/internal/effects"
	"github.com/formkeeper/formkeeper/internal/formstate"
	"github.com/formkeeper/formkeeper/internal/schema"
	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Rule execution engine.
 *
 * Serializes rule executions: at most one batch is in flight per engine
 * instance; submissions arriving while Executing queue FIFO and drain in
 * arrival order. Each dequeued batch reads the state snapshot current at
 * the moment it is dequeued - not at enqueue time - so a queued batch
 * sees the effects of everything executed before it and cannot produce
 * stale overwrites.
 *
 * Within one batch, rules execute in the order given and effects within
 * a rule apply strictly in declared order: effect N's output is visible
 * to effect N+1 through the working state. No reordering, no
 * parallelism.
 *
 * Loop guard: trigger resolution happens once per externally initiated
 * change. Effects update the working state directly and do not re-run
 * resolution within the same batch. Cascading reactions are opt-in and
 * bounded: with CascadeDepth > 0 the engine re-resolves triggers for
 * fields changed by the previous wave, skipping rules already executed
 * in this batch (cycle guard), up to the configured depth. Overflow is
 * reported, never silently recursed.
 *
 * Failure policy: an unknown rule name or failed effect is collected
 * and funnelled to the error callback; sibling effects, sibling rules,
 * and queued batches all proceed. A defensive per-batch timeout reports
 * ErrExecutionTimeout and advances the queue; a timed-out batch's
 * results are discarded, never half-committed.
 */

// EngineState describes the engine's execution loop for observability.
type EngineState string

const (
	StateIdle      EngineState = "idle"
	StateExecuting EngineState = "executing"
	StateClosed    EngineState = "closed"
)

// Result is the outcome of one executed batch.
type Result struct {
	State    types.FormState        // committed snapshot after the batch
	Attrs    types.AttributeOverlay // attribute patches produced by the batch
	Executed []string               // rules that ran, in execution order
	Errors   []error                // collected per-rule and per-effect failures
}

// ErrorFunc receives every collected failure alongside the execution
// context of the batch that produced it.
type ErrorFunc func(err error, ctx *types.ExecutionContext)

// Options configures an Engine.
type Options struct {
	// QueueSize bounds pending batches. Zero selects MaxQueueDepth.
	QueueSize int
	// JobTimeout bounds one batch. Zero disables the defensive timeout.
	JobTimeout time.Duration
	// CascadeDepth enables bounded cascading re-evaluation. Zero (the
	// default) resolves triggers once per external change, capped at
	// MaxCascadeDepth.
	CascadeDepth int
	// OnError receives collected failures. May be nil.
	OnError ErrorFunc
}

// Engine owns the execution queue and the single-flight worker.
type Engine struct {
	registry *Registry
	schema   *schema.Schema
	state    *formstate.Manager
	opts     Options

	jobs chan *job
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	running bool
}

type job struct {
	rules  []string
	ctx    *types.ExecutionContext
	result chan Result
}

// NewEngine creates an engine bound to a registry, schema, and state
// manager, and starts its worker.
func NewEngine(reg *Registry, s *schema.Schema, state *formstate.Manager, opts Options) *Engine {
	if opts.QueueSize <= 0 || opts.QueueSize > types.MaxQueueDepth {
		opts.QueueSize = types.MaxQueueDepth
	}
	if opts.CascadeDepth > types.MaxCascadeDepth {
		opts.CascadeDepth = types.MaxCascadeDepth
	}

	e := &Engine{
		registry: reg,
		schema:   s,
		state:    state,
		opts:     opts,
		jobs:     make(chan *job, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

// State reports idle/executing/closed for observability.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return StateClosed
	case e.running || len(e.jobs) > 0:
		return StateExecuting
	default:
		return StateIdle
	}
}

// QueueDepth reports the number of batches waiting behind the current one.
func (e *Engine) QueueDepth() int {
	return len(e.jobs)
}

// Close stops the worker after draining queued batches. Subsequent
// submissions fail with ErrEngineClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()
	<-e.done
}

// ExecuteRule executes a single named rule. See ExecuteAll.
func (e *Engine) ExecuteRule(ctx context.Context, name string, ec *types.ExecutionContext) (Result, error) {
	return e.ExecuteAll(ctx, []string{name}, ec)
}

// ExecuteAll submits a batch and waits for its result. The batch joins
// the FIFO queue; if the engine is idle it executes immediately. The
// context only abandons the wait - a batch that has been accepted still
// executes and commits, preserving cross-edit FIFO ordering.
func (e *Engine) ExecuteAll(ctx context.Context, names []string, ec *types.ExecutionContext) (Result, error) {
	j := &job{rules: names, ctx: ec, result: make(chan Result, 1)}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Result{}, types.ErrEngineClosed
	}
	select {
	case e.jobs <- j:
		e.mu.Unlock()
	default:
		e.mu.Unlock()
		return Result{}, types.ErrQueueFull
	}

	select {
	case res := <-j.result:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// run is the single worker: strict FIFO, one batch at a time.
func (e *Engine) run() {
	defer close(e.done)
	for j := range e.jobs {
		e.mu.Lock()
		e.running = true
		e.mu.Unlock()

		res := e.process(j)
		j.result <- res

		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}
}

// process executes one batch under the defensive timeout. On expiry the
// batch's pending commit is abandoned and the queue advances; the
// timed-out goroutine discards its work when it eventually finishes.
func (e *Engine) process(j *job) Result {
	if e.opts.JobTimeout <= 0 {
		res := e.executeBatch(j.rules, j.ctx)
		e.commit(&res)
		return res
	}

	var guard sync.Mutex
	expired := false
	resCh := make(chan Result, 1)

	go func() {
		res := e.executeBatch(j.rules, j.ctx)
		guard.Lock()
		if !expired {
			e.commit(&res)
			guard.Unlock()
			resCh <- res
			return
		}
		guard.Unlock()
	}()

	select {
	case res := <-resCh:
		return res
	case <-time.After(e.opts.JobTimeout):
		guard.Lock()
		expired = true
		guard.Unlock()
		err := fmt.Errorf("batch %v: %w", j.rules, types.ErrExecutionTimeout)
		e.report(err, j.ctx)
		log.Printf("rules: %v; advancing queue", err)
		return Result{State: e.state.Snapshot(), Errors: []error{err}}
	}
}

// commit merges the batch's value and attribute patches through the
// state manager and refreshes the result's committed snapshot.
func (e *Engine) commit(res *Result) {
	if len(res.State) == 0 && len(res.Attrs) == 0 {
		res.State = e.state.Snapshot()
		return
	}
	if err := e.state.Merge(res.State, res.Attrs); err != nil {
		res.Errors = append(res.Errors, err)
	}
	res.State = e.state.Snapshot()
}

// executeBatch runs the batch against a snapshot taken now (dequeue
// time) and returns the proposed deltas. Pure with respect to the state
// manager: commit happens in the caller.
func (e *Engine) executeBatch(names []string, ec *types.ExecutionContext) Result {
	working := e.state.Snapshot()
	res := Result{
		State: make(types.FormState),
		Attrs: make(types.AttributeOverlay),
	}

	visited := make(map[string]bool)
	changed := e.executeWave(names, ec, working, &res, visited)

	// Bounded cascade: fields changed by the previous wave may carry
	// their own triggers.
	for depth := 0; len(changed) > 0 && e.opts.CascadeDepth > 0; depth++ {
		if depth == e.opts.CascadeDepth {
			err := fmt.Errorf("fields %v: %w", changed, types.ErrCascadeDepthExceeded)
			res.Errors = append(res.Errors, err)
			e.report(err, ec)
			break
		}

		next := e.resolveCascade(changed, ec, working, visited)
		if len(next) == 0 {
			break
		}
		changed = e.executeWave(next, ec, working, &res, visited)
	}

	return res
}

// executeWave runs one ordered set of rules against the working state,
// accumulating value patches into res.State and attribute patches into
// res.Attrs. Returns the fields whose values changed, in first-write
// order, for cascade resolution.
func (e *Engine) executeWave(names []string, ec *types.ExecutionContext, working types.FormState, res *Result, visited map[string]bool) []string {
	var changed []string
	changedSeen := make(map[string]bool)

	for _, name := range names {
		rule, ok := e.registry.Get(name)
		if !ok {
			// Marked so later waves do not re-report the same name.
			visited[name] = true
			err := &types.RuleNotFoundError{Rule: name}
			res.Errors = append(res.Errors, err)
			e.report(err, ec)
			continue
		}

		if rule.Condition != nil {
			hold, err := conditions.EvaluateSet(rule.Condition.Conditions, rule.Condition.Mode, working)
			if err != nil {
				execErr := &types.RuleExecutionError{Rule: name, EffectIndex: -1, Err: err}
				res.Errors = append(res.Errors, execErr)
				e.report(execErr, ec)
			}
			if !hold {
				// Not marked visited: a later wave may change the
				// condition's inputs and satisfy the gate.
				continue
			}
		}

		visited[name] = true
		res.Executed = append(res.Executed, name)

		for i, eff := range rule.Effects {
			if !e.schema.Has(eff.TargetField) {
				execErr := &types.RuleExecutionError{
					Rule:        name,
					EffectIndex: i,
					TargetField: eff.TargetField,
					Err:         types.ErrUnknownTargetField,
				}
				res.Errors = append(res.Errors, execErr)
				e.report(execErr, ec)
				continue
			}

			patch, err := effects.Apply(eff, working)
			if err != nil {
				execErr := &types.RuleExecutionError{
					Rule:        name,
					EffectIndex: i,
					TargetField: eff.TargetField,
					Err:         err,
				}
				res.Errors = append(res.Errors, execErr)
				e.report(execErr, ec)
				continue
			}

			if patch.IsValue() {
				working[patch.Field] = patch.Value
				res.State[patch.Field] = patch.Value
				if !changedSeen[patch.Field] {
					changedSeen[patch.Field] = true
					changed = append(changed, patch.Field)
				}
			} else {
				res.Attrs.Set(patch.Field, patch.Prop, patch.Value)
			}
		}
	}

	return changed
}

// resolveCascade gathers triggers declared on fields changed by the
// previous wave, preserving field-change order and trigger declaration
// order, minus rules already executed in this batch. Equal-priority
// rules keep encounter order (stable sort, deterministic execution).
func (e *Engine) resolveCascade(changedFields []string, ec *types.ExecutionContext, working types.FormState, visited map[string]bool) []string {
	cascadeCtx := *ec
	cascadeCtx.State = working

	var names []string
	seen := make(map[string]bool)
	for _, field := range changedFields {
		resolved, errs := ResolveTriggers(field, e.schema, &cascadeCtx)
		for _, err := range errs {
			e.report(err, ec)
		}
		for _, name := range resolved {
			if visited[name] || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		ri, _ := e.registry.Get(names[i])
		rj, _ := e.registry.Get(names[j])
		return ri.Priority > rj.Priority
	})

	return names
}

func (e *Engine) report(err error, ctx *types.ExecutionContext) {
	if e.opts.OnError != nil {
		e.opts.OnError(err, ctx)
	}
}
