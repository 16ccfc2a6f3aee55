package doc

// Layout wraps the document view into display rows of at most cols cells.
//
// A newline cell stays at the end of its row and starts a new one. The
// terminator is appended to the final row so a cursor can always rest after
// the last character. Neither takes a column: a full row may carry one of
// them as an extra cell, which is the cursor slot after its last character.
// Layout returns nil when cols is not positive.
func Layout(d Document, cols int) [][]Cell {
	if cols <= 0 {
		return nil
	}

	rows := [][]Cell{{}}
	for _, c := range d.Cells {
		last := len(rows) - 1

		if c.Value == Newline {
			rows[last] = append(rows[last], c)
			rows = append(rows, []Cell{})
			continue
		}

		if len(rows[last]) >= cols {
			rows = append(rows, []Cell{c})
			continue
		}

		rows[last] = append(rows[last], c)
	}

	last := len(rows) - 1
	rows[last] = append(rows[last], Cell{ID: Terminator})

	return rows
}

// RowCol locates a cell id in a layout. Unknown ids resolve to the
// terminator's position.
func RowCol(rows [][]Cell, id CellID) (row, col int) {
	for r, cells := range rows {
		for c, cell := range cells {
			if cell.ID == id {
				return r, c
			}
		}
	}
	if len(rows) == 0 {
		return 0, 0
	}
	last := len(rows) - 1
	return last, len(rows[last]) - 1
}

// CellAt returns the id of the cell at row/col, or Terminator when the
// position lies outside the layout.
func CellAt(rows [][]Cell, row, col int) CellID {
	if row < 0 || row >= len(rows) || col < 0 || col >= len(rows[row]) {
		return Terminator
	}
	return rows[row][col].ID
}
