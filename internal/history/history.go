// Package history keeps the per-session undo and redo stacks.
//
// The two stacks encode the coordinator's state: events the session applied
// going forward, and events produced by undo that redo can reverse. Recording
// a new authored edit clears the redo stack.
//
// Undo and redo results are ordinary change events. Callers propagate them to
// peers exactly like fresh edits.
package history

import (
	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
)

// History is the undo/redo state of one editing session.
// It is not safe for concurrent use; the owning replica serializes access.
type History struct {
	ids    change.IDGenerator
	done   []change.Event
	undone []change.Event
}

// New creates an empty history. Inverted events get ids from ids.
func New(ids change.IDGenerator) *History {
	return &History{ids: ids}
}

// Record pushes a locally authored event and invalidates redo.
func (h *History) Record(ev change.Event) {
	h.done = append(h.done, ev)
	h.undone = nil
}

// Undo inverts the most recent event, applies it to d, and moves it to the
// redo stack. Returns false and d unchanged when there is nothing to undo.
func (h *History) Undo(d doc.Document) (doc.Document, change.Event, bool) {
	if len(h.done) == 0 {
		return d, change.Event{}, false
	}

	last := h.done[len(h.done)-1]
	h.done = h.done[:len(h.done)-1]

	inv := change.Invert(h.ids, last)
	h.undone = append(h.undone, inv)

	return change.Apply(d, inv), inv, true
}

// Redo inverts the most recent undo, applies it to d, and moves it back to
// history. Returns false and d unchanged when there is nothing to redo.
func (h *History) Redo(d doc.Document) (doc.Document, change.Event, bool) {
	if len(h.undone) == 0 {
		return d, change.Event{}, false
	}

	last := h.undone[len(h.undone)-1]
	h.undone = h.undone[:len(h.undone)-1]

	inv := change.Invert(h.ids, last)
	h.done = append(h.done, inv)

	return change.Apply(d, inv), inv, true
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool { return len(h.done) > 0 }

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool { return len(h.undone) > 0 }

// Len returns the sizes of the history and redo stacks.
func (h *History) Len() (done, undone int) {
	return len(h.done), len(h.undone)
}
