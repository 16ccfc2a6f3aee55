package doc

import "strings"

// CellID identifies a cell within a document.
type CellID string

const (
	// Terminator is the synthetic trailing anchor. Inserting before it appends.
	Terminator CellID = "terminator"

	// Newline is the value of a line-break cell.
	Newline = "\n"

	// UnsavedID is the document id a client uses before the persistence
	// layer has assigned a real one.
	UnsavedID = "new"
)

// Cell is the smallest addressable unit of content: one character or the
// newline marker.
type Cell struct {
	ID    CellID `json:"id"`
	Value string `json:"value"`
}

// Document is an ordered sequence of cells.
type Document struct {
	ID    string `json:"id"`
	Cells []Cell `json:"cells"`
}

// New returns an empty document with the given id.
func New(id string) Document {
	return Document{ID: id, Cells: []Cell{}}
}

// FindIndex returns the position of the cell with the given id.
// Terminator and unknown ids both resolve to len(d.Cells).
func (d Document) FindIndex(id CellID) int {
	if id == Terminator {
		return len(d.Cells)
	}
	for i, c := range d.Cells {
		if c.ID == id {
			return i
		}
	}
	return len(d.Cells)
}

// Contains reports whether a real cell with the given id exists.
func (d Document) Contains(id CellID) bool {
	for _, c := range d.Cells {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Insert returns a copy of d with cells spliced in immediately before anchor.
func Insert(d Document, anchor CellID, cells []Cell) Document {
	idx := d.FindIndex(anchor)
	if idx < 0 {
		idx = 0
	}

	out := make([]Cell, 0, len(d.Cells)+len(cells))
	out = append(out, d.Cells[:idx]...)
	out = append(out, cells...)
	out = append(out, d.Cells[idx:]...)

	return Document{ID: d.ID, Cells: out}
}

// Delete returns a copy of d without any cell whose id appears in targets,
// plus the removed cells in document order. Matching is by identity, so the
// result is correct even if positions shifted after targets was computed.
func Delete(d Document, targets []Cell) (Document, []Cell) {
	ids := make(map[CellID]struct{}, len(targets))
	for _, c := range targets {
		ids[c.ID] = struct{}{}
	}

	kept := make([]Cell, 0, len(d.Cells))
	var removed []Cell
	for _, c := range d.Cells {
		if _, ok := ids[c.ID]; ok {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}

	return Document{ID: d.ID, Cells: kept}, removed
}

// DeleteRange removes count cells starting one before the position of start.
// It is the backspace primitive: DeleteRange(d, cursor, 1) removes the cell
// to the left of the cursor. The start position is clamped to 0.
func DeleteRange(d Document, start CellID, count int) (Document, []Cell) {
	if count <= 0 || len(d.Cells) == 0 {
		return d.Clone(), nil
	}

	from := d.FindIndex(start) - 1
	if from < 0 {
		from = 0
	}
	to := from + count
	if to > len(d.Cells) {
		to = len(d.Cells)
	}

	removed := make([]Cell, to-from)
	copy(removed, d.Cells[from:to])

	kept := make([]Cell, 0, len(d.Cells)-len(removed))
	kept = append(kept, d.Cells[:from]...)
	kept = append(kept, d.Cells[to:]...)

	return Document{ID: d.ID, Cells: kept}, removed
}

// AnchorAfter returns the id of the cell that follows the last of cells in
// d, or Terminator when that cell is the last one or none are present.
// Reinserting cells before the returned anchor restores their position.
func (d Document) AnchorAfter(cells []Cell) CellID {
	ids := make(map[CellID]struct{}, len(cells))
	for _, c := range cells {
		ids[c.ID] = struct{}{}
	}

	last := -1
	for i, c := range d.Cells {
		if _, ok := ids[c.ID]; ok {
			last = i
		}
	}
	if last < 0 || last+1 >= len(d.Cells) {
		return Terminator
	}
	return d.Cells[last+1].ID
}

// Between returns the cells from the cursor at from up to, but excluding,
// the cursor at to. Cursors are given in either order.
func (d Document) Between(from, to CellID) []Cell {
	a, b := d.FindIndex(from), d.FindIndex(to)
	if a > b {
		a, b = b, a
	}
	out := make([]Cell, b-a)
	copy(out, d.Cells[a:b])
	return out
}

// View returns the cells followed by the terminator sentinel.
func (d Document) View() []Cell {
	out := make([]Cell, 0, len(d.Cells)+1)
	out = append(out, d.Cells...)
	return append(out, Cell{ID: Terminator})
}

// Content concatenates the cell values.
func (d Document) Content() string {
	var b strings.Builder
	for _, c := range d.Cells {
		b.WriteString(c.Value)
	}
	return b.String()
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	cells := make([]Cell, len(d.Cells))
	copy(cells, d.Cells)
	return Document{ID: d.ID, Cells: cells}
}

// Equal reports whether both documents hold the same cells in the same order.
// The document id is not compared.
func (d Document) Equal(other Document) bool {
	if len(d.Cells) != len(other.Cells) {
		return false
	}
	for i := range d.Cells {
		if d.Cells[i] != other.Cells[i] {
			return false
		}
	}
	return true
}

// Contiguous reports whether cells occupy one unbroken run of d, in any
// order. Cells not in d make the run broken.
func (d Document) Contiguous(cells []Cell) bool {
	if len(cells) == 0 {
		return false
	}
	ids := make(map[CellID]struct{}, len(cells))
	for _, c := range cells {
		ids[c.ID] = struct{}{}
	}

	first := -1
	for i, c := range d.Cells {
		if _, ok := ids[c.ID]; ok {
			first = i
			break
		}
	}
	if first < 0 || first+len(ids) > len(d.Cells) {
		return false
	}
	for _, c := range d.Cells[first : first+len(ids)] {
		if _, ok := ids[c.ID]; !ok {
			return false
		}
	}
	return true
}
