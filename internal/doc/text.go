package doc

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Generator mints unique cell ids.
type Generator interface {
	Generate() string
}

// NewCells splits text into one cell per rune, each with a fresh id.
//
// Text is NFC-normalized first so that a precomposed and a decomposed "é"
// produce the same single cell. Carriage returns are folded into the newline
// marker ("\r\n" and "\r" both become one Newline cell).
func NewCells(text string, ids Generator) []Cell {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", Newline)
	text = strings.ReplaceAll(text, "\r", Newline)

	cells := make([]Cell, 0, len(text))
	for _, r := range text {
		cells = append(cells, Cell{ID: CellID(ids.Generate()), Value: string(r)})
	}
	return cells
}

// Text concatenates the values of cells.
func Text(cells []Cell) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(c.Value)
	}
	return b.String()
}
