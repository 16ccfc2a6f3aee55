package change

import (
	"errors"
	"fmt"

	"github.com/roach88/cellsync/internal/doc"
)

// ActionType tags an Action.
type ActionType string

const (
	// ActionInsert inserts cells before an anchor.
	ActionInsert ActionType = "insert"
	// ActionDelete removes cells by id.
	ActionDelete ActionType = "delete"
)

// ErrInvalidEvent is returned by Validate for structurally broken events.
var ErrInvalidEvent = errors.New("invalid change event")

// Action is one direction of a change.
//
// For ActionInsert, InsertBefore names the anchor cell (doc.Terminator to
// append). For ActionDelete, InsertBefore is empty.
type Action struct {
	Type         ActionType `json:"type"`
	InsertBefore doc.CellID `json:"insert_before,omitempty"`
	Cells        []doc.Cell `json:"cells"`
}

// Change pairs an action with its exact inverse.
type Change struct {
	Up   Action `json:"up"`
	Down Action `json:"down"`
}

// Event is a single invertible edit.
type Event struct {
	ID     string `json:"id"`
	Change Change `json:"change"`
}

// NewInsert creates an event inserting cells before anchor.
func NewInsert(ids IDGenerator, anchor doc.CellID, cells []doc.Cell) Event {
	return Event{
		ID: ids.Generate(),
		Change: Change{
			Up:   Action{Type: ActionInsert, InsertBefore: anchor, Cells: cells},
			Down: Action{Type: ActionDelete, Cells: cells},
		},
	}
}

// NewDelete creates an event deleting cells. Anchor is the cell the deleted
// cells sat immediately before, so that Down reinserts them in place.
func NewDelete(ids IDGenerator, anchor doc.CellID, cells []doc.Cell) Event {
	return Event{
		ID: ids.Generate(),
		Change: Change{
			Up:   Action{Type: ActionDelete, Cells: cells},
			Down: Action{Type: ActionInsert, InsertBefore: anchor, Cells: cells},
		},
	}
}

// Invert returns the event that undoes ev, under a new id.
func Invert(ids IDGenerator, ev Event) Event {
	return Event{
		ID: ids.Generate(),
		Change: Change{
			Up:   ev.Change.Down,
			Down: ev.Change.Up,
		},
	}
}

// Kind returns the type of the forward action.
func (e Event) Kind() ActionType {
	return e.Change.Up.Type
}

// Cells returns the cells the event touches.
func (e Event) Cells() []doc.Cell {
	return e.Change.Up.Cells
}

// Validate checks that Down is the structural inverse of Up: opposite
// action types over the same cell ids in the same order.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}

	up, down := e.Change.Up, e.Change.Down
	switch {
	case up.Type == ActionInsert && down.Type == ActionDelete:
		if up.InsertBefore == "" {
			return fmt.Errorf("%w: event %s: insert without anchor", ErrInvalidEvent, e.ID)
		}
	case up.Type == ActionDelete && down.Type == ActionInsert:
		if down.InsertBefore == "" {
			return fmt.Errorf("%w: event %s: delete without restore anchor", ErrInvalidEvent, e.ID)
		}
	default:
		return fmt.Errorf("%w: event %s: actions %q/%q are not inverses", ErrInvalidEvent, e.ID, up.Type, down.Type)
	}

	if len(up.Cells) != len(down.Cells) {
		return fmt.Errorf("%w: event %s: up has %d cells, down has %d", ErrInvalidEvent, e.ID, len(up.Cells), len(down.Cells))
	}
	for i := range up.Cells {
		if up.Cells[i].ID != down.Cells[i].ID {
			return fmt.Errorf("%w: event %s: cell %d differs (%s != %s)", ErrInvalidEvent, e.ID, i, up.Cells[i].ID, down.Cells[i].ID)
		}
	}
	return nil
}
