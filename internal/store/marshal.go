package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
)

// marshalJSON encodes v as compact JSON TEXT with HTML escaping disabled, so
// cell values like "<" and "&" are stored verbatim.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// MarshalEvent converts an event to JSON TEXT for storage.
func MarshalEvent(ev change.Event) (string, error) {
	s, err := marshalJSON(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return s, nil
}

// UnmarshalEvent parses stored JSON TEXT into an event.
func UnmarshalEvent(data string) (change.Event, error) {
	var ev change.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return change.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// MarshalCells converts canonical cells to JSON TEXT. A nil slice is stored
// as "[]".
func MarshalCells(cells []doc.Cell) (string, error) {
	if cells == nil {
		cells = []doc.Cell{}
	}
	s, err := marshalJSON(cells)
	if err != nil {
		return "", fmt.Errorf("marshal cells: %w", err)
	}
	return s, nil
}

// UnmarshalCells parses stored JSON TEXT into cells.
func UnmarshalCells(data string) ([]doc.Cell, error) {
	cells := []doc.Cell{}
	if data == "" {
		return cells, nil
	}
	if err := json.Unmarshal([]byte(data), &cells); err != nil {
		return nil, fmt.Errorf("unmarshal cells: %w", err)
	}
	return cells, nil
}
