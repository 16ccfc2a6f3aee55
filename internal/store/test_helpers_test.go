package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertEvent builds an event inserting text before anchor, with cell ids
// derived from eventID so tests can anchor on them.
func insertEvent(eventID string, anchor doc.CellID, text string) change.Event {
	cells := doc.NewCells(text, change.NewSequenceGenerator(eventID))
	return change.NewInsert(change.NewFixedGenerator(eventID), anchor, cells)
}
