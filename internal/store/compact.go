package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
)

// Compact folds every unapplied change of documentID into the canonical
// document and returns how many changes were folded. Conflicts are retried
// under the store's RetryPolicy.
func (s *Store) Compact(ctx context.Context, documentID string) (int, error) {
	var folded int
	err := s.retry.Run(ctx, s.logger, "compact "+documentID, func() error {
		n, err := s.compactOnce(ctx, documentID)
		if isBusy(err) {
			err = fmt.Errorf("%w: %w", ErrConflict, err)
		}
		folded = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return folded, nil
}

type pendingRow struct {
	seq int64
	ev  change.Event
}

func (s *Store) compactOnce(ctx context.Context, documentID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("compact: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		cellsJSON string
		version   int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT cells, version FROM documents WHERE id = ?", documentID,
	).Scan(&cellsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("compact %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("compact: read document: %w", err)
	}

	pending, err := readUnapplied(ctx, tx, documentID)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	cells, err := UnmarshalCells(cellsJSON)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	events := make([]change.Event, len(pending))
	for i, p := range pending {
		events[i] = p.ev
	}
	next := change.Fold(doc.Document{ID: documentID, Cells: cells}, events...)

	nextJSON, err := MarshalCells(next.Cells)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE documents SET cells = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, nextJSON, documentID, version)
	if err != nil {
		return 0, fmt.Errorf("compact: write document: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("compact: rows affected: %w", err)
	} else if n != 1 {
		return 0, fmt.Errorf("compact %s: version %d moved: %w", documentID, version, ErrConflict)
	}

	for _, p := range pending {
		result, err := tx.ExecContext(ctx,
			"UPDATE pending_changes SET applied = 1 WHERE seq = ? AND applied = 0", p.seq)
		if err != nil {
			return 0, fmt.Errorf("compact: mark applied: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return 0, fmt.Errorf("compact: rows affected: %w", err)
		} else if n != 1 {
			return 0, fmt.Errorf("compact %s: change %s already applied: %w", documentID, p.ev.ID, ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("compact: commit: %w", err)
	}

	s.logger.Debug("compacted",
		"document", documentID,
		"changes", len(pending),
		"version", version+1,
	)
	return len(pending), nil
}

// readUnapplied returns unapplied changes in fold order.
func readUnapplied(ctx context.Context, tx *sql.Tx, documentID string) ([]pendingRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT seq, event FROM pending_changes
		WHERE document_id = ? AND applied = 0
		ORDER BY created_at ASC, seq ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("compact: query pending: %w", err)
	}
	defer rows.Close()

	var out []pendingRow
	for rows.Next() {
		var (
			seq       int64
			eventJSON string
		)
		if err := rows.Scan(&seq, &eventJSON); err != nil {
			return nil, fmt.Errorf("compact: scan pending: %w", err)
		}
		ev, err := UnmarshalEvent(eventJSON)
		if err != nil {
			return nil, fmt.Errorf("compact: change %d: %w", seq, err)
		}
		out = append(out, pendingRow{seq: seq, ev: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compact: iterate pending: %w", err)
	}
	return out, nil
}
