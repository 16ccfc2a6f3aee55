package change

import "github.com/roach88/cellsync/internal/doc"

// Apply performs ev's forward action on d and returns the new document.
// Actions of unknown type leave the document unchanged.
func Apply(d doc.Document, ev Event) doc.Document {
	up := ev.Change.Up

	switch up.Type {
	case ActionInsert:
		return doc.Insert(d, up.InsertBefore, up.Cells)
	case ActionDelete:
		out, _ := doc.Delete(d, up.Cells)
		return out
	default:
		return d
	}
}

// Fold applies events to d in order.
func Fold(d doc.Document, events ...Event) doc.Document {
	for _, ev := range events {
		d = Apply(d, ev)
	}
	return d
}
