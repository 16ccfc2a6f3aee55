package doc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter mints ids "c1", "c2", ... for deterministic tests.
type counter struct{ n int }

func (c *counter) Generate() string {
	c.n++
	return fmt.Sprintf("c%d", c.n)
}

func cells(pairs ...string) []Cell {
	out := make([]Cell, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Cell{ID: CellID(pairs[i]), Value: pairs[i+1]})
	}
	return out
}

func TestFindIndex(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "H", "b", "i")}

	assert.Equal(t, 0, d.FindIndex("a"))
	assert.Equal(t, 1, d.FindIndex("b"))
	assert.Equal(t, 2, d.FindIndex(Terminator))
	assert.Equal(t, 2, d.FindIndex("missing"), "unknown ids fail open to the terminator")
}

func TestInsert_BeforeAnchor(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "H", "b", "i")}

	got := Insert(d, "b", cells("x", "!"))

	assert.Equal(t, "H!i", got.Content())
	assert.Equal(t, "Hi", d.Content(), "input must not change")
}

func TestInsert_Prepend(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "H")}

	got := Insert(d, "a", cells("x", ">"))
	assert.Equal(t, ">H", got.Content())
}

func TestInsert_Terminator(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "H")}

	got := Insert(d, Terminator, cells("b", "i"))
	assert.Equal(t, cells("a", "H", "b", "i"), got.Cells)
}

func TestInsert_UnknownAnchorAppends(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "H")}

	got := Insert(d, "gone", cells("b", "i"))
	assert.Equal(t, "Hi", got.Content())
}

func TestInsert_DoesNotShareBackingArray(t *testing.T) {
	base := make([]Cell, 2, 8)
	copy(base, cells("a", "1", "b", "2"))
	d := Document{ID: "d", Cells: base}

	first := Insert(d, Terminator, cells("c", "3"))
	second := Insert(d, Terminator, cells("e", "4"))

	assert.Equal(t, "123", first.Content())
	assert.Equal(t, "124", second.Content())
}

func TestDelete_ByIdentity(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a", "b", "b", "c", "c", "d", "d")}

	// Order and stale values in the target list do not matter.
	got, removed := Delete(d, cells("c", "?", "a", "?"))

	assert.Equal(t, "bd", got.Content())
	assert.Equal(t, cells("a", "a", "c", "c"), removed)
	assert.Equal(t, "abcd", d.Content())
}

func TestDelete_MissingTargets(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a")}

	got, removed := Delete(d, cells("z", "z"))
	assert.Equal(t, "a", got.Content())
	assert.Empty(t, removed)
}

func TestDeleteRange_Backspace(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a", "b", "b", "c", "c")}

	got, removed := DeleteRange(d, "c", 1)
	assert.Equal(t, "ac", got.Content())
	assert.Equal(t, cells("b", "b"), removed)

	got, removed = DeleteRange(d, "c", 2)
	assert.Equal(t, "a", got.Content())
	assert.Equal(t, cells("b", "b", "c", "c"), removed)

	// The range is clipped at the end of the document.
	got, removed = DeleteRange(d, Terminator, 2)
	assert.Equal(t, "ab", got.Content())
	assert.Equal(t, cells("c", "c"), removed)
}

func TestDeleteRange_ClampsAtStart(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a", "b", "b")}

	got, removed := DeleteRange(d, "a", 1)
	assert.Equal(t, "b", got.Content())
	assert.Equal(t, cells("a", "a"), removed)
}

func TestDeleteRange_Empty(t *testing.T) {
	got, removed := DeleteRange(New("d"), Terminator, 1)
	assert.Empty(t, got.Cells)
	assert.Empty(t, removed)
}

func TestAnchorAfter(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a", "b", "b", "c", "c")}

	assert.Equal(t, CellID("c"), d.AnchorAfter(cells("a", "a", "b", "b")))
	assert.Equal(t, Terminator, d.AnchorAfter(cells("c", "c")))
	assert.Equal(t, Terminator, d.AnchorAfter(nil))
}

func TestContiguous(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a", "b", "b", "c", "c", "d", "d")}

	assert.True(t, d.Contiguous(cells("b", "b", "c", "c")))
	assert.True(t, d.Contiguous(cells("c", "c", "b", "b")), "order does not matter")
	assert.True(t, d.Contiguous(cells("d", "d")))
	assert.False(t, d.Contiguous(cells("a", "a", "c", "c")))
	assert.False(t, d.Contiguous(cells("a", "a", "x", "x")), "unknown cell")
	assert.False(t, d.Contiguous(nil))
}

func TestBetween(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "a", "b", "b", "c", "c")}

	assert.Equal(t, cells("a", "a", "b", "b"), d.Between("a", "c"))
	assert.Equal(t, cells("a", "a", "b", "b"), d.Between("c", "a"))
	assert.Equal(t, cells("b", "b", "c", "c"), d.Between("b", Terminator))
	assert.Empty(t, d.Between("b", "b"))
}

func TestViewAppendsTerminator(t *testing.T) {
	d := Document{ID: "d", Cells: cells("a", "H")}

	view := d.View()
	require.Len(t, view, 2)
	assert.Equal(t, Terminator, view[1].ID)
	assert.Len(t, d.Cells, 1, "terminator is never stored")
}

func TestEqualIgnoresDocumentID(t *testing.T) {
	a := Document{ID: "one", Cells: cells("a", "H")}
	b := Document{ID: "two", Cells: cells("a", "H")}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(New("one")))
}

func TestNewCells(t *testing.T) {
	ids := &counter{}

	got := NewCells("Hi\r\nthere", ids)
	require.Len(t, got, 8)
	assert.Equal(t, Cell{ID: "c1", Value: "H"}, got[0])
	assert.Equal(t, Newline, got[2].Value)
	assert.Equal(t, "Hi\nthere", Text(got))
}

func TestNewCells_NormalizesToNFC(t *testing.T) {
	ids := &counter{}

	// "e" + COMBINING ACUTE ACCENT composes to a single "é" cell.
	got := NewCells("e\u0301", ids)
	require.Len(t, got, 1)
	assert.Equal(t, "\u00e9", got[0].Value)
}
