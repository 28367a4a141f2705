// internal/formstate/history.go
package formstate

import "github.com/formkeeper/formkeeper/internal/types"

/*
 * Bounded undo/redo history.
 *
 * Single combined timeline with a cursor: entry at cursor is the
 * current state, entries before it are undo targets, entries after it
 * are redo targets. A commit truncates the redo tail, appends the new
 * state, and evicts the oldest entry once undo depth exceeds the limit
 * (FIFO eviction).
 *
 * Limit counts undo depth, not timeline length: with limit 50 the
 * timeline holds at most 51 snapshots (50 past + current), so undo can
 * succeed at most 50 consecutive times.
 */

type history struct {
	timeline []types.FormState
	cursor   int
	limit    int
}

func newHistory(initial types.FormState, limit int) *history {
	if limit <= 0 {
		limit = types.DefaultHistoryLimit
	}
	return &history{
		timeline: []types.FormState{initial},
		cursor:   0,
		limit:    limit,
	}
}

// push records a newly committed state, discarding any redo tail.
func (h *history) push(state types.FormState) {
	h.timeline = append(h.timeline[:h.cursor+1], state)
	h.cursor++
	if h.cursor > h.limit {
		h.timeline = h.timeline[1:]
		h.cursor--
	}
}

// undo steps the cursor back and returns the restored state.
// Returns false when no past entry remains.
func (h *history) undo() (types.FormState, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return h.timeline[h.cursor], true
}

// redo steps the cursor forward and returns the restored state.
// Returns false when no undone entry remains.
func (h *history) redo() (types.FormState, bool) {
	if h.cursor >= len(h.timeline)-1 {
		return nil, false
	}
	h.cursor++
	return h.timeline[h.cursor], true
}

// depth reports how many undo steps are currently possible.
func (h *history) depth() int {
	return h.cursor
}
