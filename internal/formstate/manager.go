// internal/formstate/manager.go
package formstate

import (
	"fmt"
	"log"
	"sync"

	"github.com/formkeeper/formkeeper/internal/types"
)

/*
 * Authoritative form-state ownership.
 *
 * The Manager is the single writer of FormState. Every other component
 * operates on defensive copies (Snapshot) or proposes deltas that only
 * the Manager commits (SetState/Merge). This single-writer discipline
 * is what keeps the queue-based execution model safe without broader
 * locking.
 *
 * Merge semantics: shallow per-key. Nested objects under container
 * fields are replaced wholesale at the field-name key, not deep-merged,
 * to keep merge behavior predictable for consumers.
 *
 * In-flight guard: a commit arriving while another commit is applying
 * (a subscriber calling SetState, or an overlapping caller) is deferred
 * onto a pending queue, logged as a warning, and drained by the active
 * committer after its own notification completes. Deferring instead of
 * rejecting means no update is ever silently lost to an update storm;
 * the warning makes the storm visible.
 *
 * Subscribers run synchronously after every committed update with
 * (new, previous) snapshots. History records each committed state,
 * bounded FIFO (default undo depth 50).
 */

// Listener observes committed updates. Both arguments are snapshots the
// listener may retain; neither shares identity with internal state.
type Listener func(newState, previous types.FormState)

type pendingUpdate struct {
	partial types.FormState
	attrs   types.AttributeOverlay
}

// Manager owns the authoritative FormState and its attribute overlay.
type Manager struct {
	mu         sync.Mutex
	state      types.FormState
	overlay    types.AttributeOverlay
	hist       *history
	listeners  map[int]Listener
	nextListen int
	applying   bool
	pending    []pendingUpdate
}

// NewManager creates a manager seeded with the initial state.
// historyLimit <= 0 selects DefaultHistoryLimit.
func NewManager(initial types.FormState, historyLimit int) *Manager {
	snap := cloneState(initial)
	return &Manager{
		state:     snap,
		overlay:   make(types.AttributeOverlay),
		hist:      newHistory(cloneState(snap), historyLimit),
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns a defensive copy of the current state. Callers can
// mutate the copy freely without affecting the manager.
func (m *Manager) Snapshot() types.FormState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state)
}

// Overlay returns a copy of the current attribute overlay.
func (m *Manager) Overlay() types.AttributeOverlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlay.Clone()
}

// SetState merges an update into the current state. The update is
// either a FormState/map (merged shallow per-key) or a function
// (prev) -> partial evaluated against a snapshot of the current state.
func (m *Manager) SetState(update any) error {
	switch u := update.(type) {
	case types.FormState:
		return m.commit(u, nil)
	case map[string]any:
		return m.commit(types.FormState(u), nil)
	case func(types.FormState) types.FormState:
		return m.commit(u(m.Snapshot()), nil)
	default:
		return &types.StateUpdateError{Reason: fmt.Errorf("unsupported update type %T", update)}
	}
}

// Merge commits a partial value update plus attribute patches in one
// atomic step. Either argument may be nil.
func (m *Manager) Merge(partial types.FormState, attrs types.AttributeOverlay) error {
	return m.commit(partial, attrs)
}

// commit is the single mutation point. While one commit is applying,
// further commits defer onto the pending queue; the active committer
// drains the queue in arrival order before returning.
func (m *Manager) commit(partial types.FormState, attrs types.AttributeOverlay) error {
	m.mu.Lock()
	if m.applying {
		m.pending = append(m.pending, pendingUpdate{partial: partial, attrs: attrs})
		m.mu.Unlock()
		err := &types.StateUpdateError{Reason: types.ErrReentrantUpdate}
		log.Printf("formstate: update deferred: %v", err)
		return nil
	}
	m.applying = true

	m.applyLocked(partial, attrs)

	// Drain updates deferred during notification.
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.applyLocked(next.partial, next.attrs)
	}

	m.applying = false
	m.mu.Unlock()
	return nil
}

// applyLocked merges one update and notifies subscribers. Called with
// mu held; the lock is released around listener invocation so listeners
// can read snapshots, and reacquired before returning.
func (m *Manager) applyLocked(partial types.FormState, attrs types.AttributeOverlay) {
	previous := m.state
	next := cloneState(previous)
	for k, v := range partial {
		next[k] = v
	}
	m.state = next
	if attrs != nil {
		m.overlay.MergeFrom(attrs)
	}
	m.hist.push(cloneState(next))

	newSnap := cloneState(next)
	prevSnap := cloneState(previous)
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}

	m.mu.Unlock()
	for _, l := range listeners {
		l(newSnap, prevSnap)
	}
	m.mu.Lock()
}

// Subscribe registers a listener and returns its id for Unsubscribe.
func (m *Manager) Subscribe(l Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListen
	m.nextListen++
	m.listeners[id] = l
	return id
}

// Unsubscribe removes a listener. Unknown ids are a no-op.
func (m *Manager) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Undo restores the most recent history entry and notifies subscribers.
// Returns false when the history is exhausted.
func (m *Manager) Undo() bool {
	return m.restore((*history).undo)
}

// Redo re-applies the most recently undone entry.
func (m *Manager) Redo() bool {
	return m.restore((*history).redo)
}

func (m *Manager) restore(step func(*history) (types.FormState, bool)) bool {
	m.mu.Lock()
	if m.applying {
		m.mu.Unlock()
		log.Printf("formstate: undo/redo rejected during in-flight update")
		return false
	}
	restored, ok := step(m.hist)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.applying = true

	previous := m.state
	m.state = cloneState(restored)

	newSnap := cloneState(m.state)
	prevSnap := cloneState(previous)
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(newSnap, prevSnap)
	}

	m.mu.Lock()
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.applyLocked(next.partial, next.attrs)
	}
	m.applying = false
	m.mu.Unlock()
	return true
}

// HistoryDepth reports how many undo steps are currently available.
func (m *Manager) HistoryDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hist.depth()
}

// cloneState copies the top-level map and one level of container values
// (maps and slices), which is where shared mutation would otherwise
// leak. Container values are replaced wholesale on merge, so deeper
// structure stays effectively immutable once committed.
func cloneState(s types.FormState) types.FormState {
	out := make(types.FormState, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = e
		}
		return c
	case []any:
		c := make([]any, len(t))
		copy(c, t)
		return c
	default:
		return v
	}
}
