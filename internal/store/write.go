package store

import (
	"context"
	"fmt"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
)

// ResolveDocumentID returns documentID, or a freshly minted id when the
// client has not been assigned one yet.
func ResolveDocumentID(ids change.IDGenerator, documentID string) string {
	if documentID == "" || documentID == doc.UnsavedID {
		return ids.Generate()
	}
	return documentID
}

// Submit appends ev to the pending log of documentID and returns the
// document id the change was recorded under.
//
// An empty or doc.UnsavedID documentID mints a new document. A named id that
// does not exist yet is created. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - a duplicate event id is silently ignored.
func (s *Store) Submit(ctx context.Context, documentID string, ev change.Event, createdAt, uploadedAt int64) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	eventJSON, err := MarshalEvent(ev)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	id := ResolveDocumentID(s.ids, documentID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("submit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, cells, version, created_at)
		VALUES (?, '[]', 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, uploadedAt); err != nil {
		return "", fmt.Errorf("submit: insert document: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO pending_changes (id, document_id, event, created_at, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, id, eventJSON, createdAt, uploadedAt)
	if err != nil {
		return "", fmt.Errorf("submit: insert change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("submit: commit: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		s.logger.Debug("duplicate change ignored", "document", id, "event", ev.ID)
	}
	return id, nil
}
