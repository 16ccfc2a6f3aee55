package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
)

// PendingChange is one row of the pending-change log.
type PendingChange struct {
	Seq        int64        `json:"seq"`
	DocumentID string       `json:"document_id"`
	Event      change.Event `json:"event"`
	CreatedAt  int64        `json:"created_at"`
	UploadedAt int64        `json:"uploaded_at"`
	Applied    bool         `json:"applied"`
}

// DocumentInfo summarizes a stored document.
type DocumentInfo struct {
	ID        string `json:"id"`
	Version   int64  `json:"version"`
	Cells     int    `json:"cells"`
	Unapplied int    `json:"unapplied"`
	CreatedAt int64  `json:"created_at"`
}

// Fetch compacts documentID and returns its canonical document.
// Returns ErrNotFound if the document does not exist.
func (s *Store) Fetch(ctx context.Context, documentID string) (doc.Document, error) {
	if _, err := s.Compact(ctx, documentID); err != nil {
		return doc.Document{}, fmt.Errorf("fetch: %w", err)
	}

	var cellsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT cells FROM documents WHERE id = ?", documentID,
	).Scan(&cellsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return doc.Document{}, fmt.Errorf("fetch %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return doc.Document{}, fmt.Errorf("fetch: %w", err)
	}

	cells, err := UnmarshalCells(cellsJSON)
	if err != nil {
		return doc.Document{}, fmt.Errorf("fetch: %w", err)
	}
	return doc.Document{ID: documentID, Cells: cells}, nil
}

// Pending returns the full change log of documentID, applied rows included,
// in fold order: created_at, then seq.
//
// Returns an empty slice (not nil) if the document has no changes.
func (s *Store) Pending(ctx context.Context, documentID string) ([]PendingChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, document_id, event, created_at, uploaded_at, applied
		FROM pending_changes
		WHERE document_id = ?
		ORDER BY created_at ASC, seq ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("pending: query: %w", err)
	}
	defer rows.Close()

	out := []PendingChange{}
	for rows.Next() {
		var (
			pc        PendingChange
			eventJSON string
			applied   int
		)
		if err := rows.Scan(&pc.Seq, &pc.DocumentID, &eventJSON, &pc.CreatedAt, &pc.UploadedAt, &applied); err != nil {
			return nil, fmt.Errorf("pending: scan: %w", err)
		}
		pc.Event, err = UnmarshalEvent(eventJSON)
		if err != nil {
			return nil, fmt.Errorf("pending: change %d: %w", pc.Seq, err)
		}
		pc.Applied = applied != 0
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending: iterate: %w", err)
	}
	return out, nil
}

// Documents lists every stored document ordered by id.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.version, d.cells, d.created_at,
		       (SELECT COUNT(*) FROM pending_changes p
		        WHERE p.document_id = d.id AND p.applied = 0)
		FROM documents d
		ORDER BY d.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("documents: query: %w", err)
	}
	defer rows.Close()

	out := []DocumentInfo{}
	for rows.Next() {
		var (
			info      DocumentInfo
			cellsJSON string
		)
		if err := rows.Scan(&info.ID, &info.Version, &cellsJSON, &info.CreatedAt, &info.Unapplied); err != nil {
			return nil, fmt.Errorf("documents: scan: %w", err)
		}
		cells, err := UnmarshalCells(cellsJSON)
		if err != nil {
			return nil, fmt.Errorf("documents: %s: %w", info.ID, err)
		}
		info.Cells = len(cells)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents: iterate: %w", err)
	}
	return out, nil
}
