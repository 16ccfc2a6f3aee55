// Package pgstore is the PostgreSQL persistence collaborator. It keeps the
// same tables and compaction contract as package store, but compacts under
// SERIALIZABLE isolation so that several server processes can share one
// database.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store is the PostgreSQL persistence collaborator.
//
// Thread-safety: safe for concurrent use; backed by a pgxpool.Pool.
type Store struct {
	pool   *pgxpool.Pool
	owned  bool
	ids    change.IDGenerator
	retry  store.RetryPolicy
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets the generator used to mint document ids.
func WithIDGenerator(ids change.IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

// WithRetryPolicy sets the serialization-failure retry policy.
func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

// Open connects to url, applies the schema, and returns a Store that owns
// the pool.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	s, err := New(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an existing pool and applies the schema. The caller keeps
// ownership of pool.
func New(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}

	s := &Store{
		pool:   pool,
		ids:    change.UUIDv7Generator{},
		retry:  store.DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the pool if Open created it.
func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

// isSerializationFailure reports whether err is a retryable transaction
// failure: serialization_failure (40001) or deadlock_detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// Submit appends ev to the pending log of documentID. See store.Store.Submit.
func (s *Store) Submit(ctx context.Context, documentID string, ev change.Event, createdAt, uploadedAt int64) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	eventJSON, err := store.MarshalEvent(ev)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	id := store.ResolveDocumentID(s.ids, documentID)

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO documents (id, cells, version, created_at)
			VALUES ($1, '[]'::jsonb, 0, $2)
			ON CONFLICT (id) DO NOTHING
		`, id, uploadedAt); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO pending_changes (id, document_id, event, created_at, uploaded_at)
			VALUES ($1, $2, $3::jsonb, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, ev.ID, id, eventJSON, createdAt, uploadedAt)
		if err != nil {
			return fmt.Errorf("insert change: %w", err)
		}
		if tag.RowsAffected() == 0 {
			s.logger.Debug("duplicate change ignored", "document", id, "event", ev.ID)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return id, nil
}

// Compact folds every unapplied change of documentID into the canonical
// document under SERIALIZABLE isolation. See store.Store.Compact.
func (s *Store) Compact(ctx context.Context, documentID string) (int, error) {
	var folded int
	err := s.retry.Run(ctx, s.logger, "compact "+documentID, func() error {
		n, err := s.compactOnce(ctx, documentID)
		if isSerializationFailure(err) {
			err = fmt.Errorf("%w: %w", store.ErrConflict, err)
		}
		folded = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return folded, nil
}

func (s *Store) compactOnce(ctx context.Context, documentID string) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("compact: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	var (
		cellsJSON string
		version   int64
	)
	err = tx.QueryRow(ctx,
		"SELECT cells::text, version FROM documents WHERE id = $1", documentID,
	).Scan(&cellsJSON, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("compact %s: %w", documentID, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("compact: read document: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT seq, event::text FROM pending_changes
		WHERE document_id = $1 AND applied = FALSE
		ORDER BY created_at ASC, seq ASC
	`, documentID)
	if err != nil {
		return 0, fmt.Errorf("compact: query pending: %w", err)
	}
	var (
		seqs   []int64
		events []change.Event
	)
	for rows.Next() {
		var (
			seq       int64
			eventJSON string
		)
		if err := rows.Scan(&seq, &eventJSON); err != nil {
			rows.Close()
			return 0, fmt.Errorf("compact: scan pending: %w", err)
		}
		ev, err := store.UnmarshalEvent(eventJSON)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("compact: change %d: %w", seq, err)
		}
		seqs = append(seqs, seq)
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("compact: iterate pending: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	cells, err := store.UnmarshalCells(cellsJSON)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	next := change.Fold(doc.Document{ID: documentID, Cells: cells}, events...)
	nextJSON, err := store.MarshalCells(next.Cells)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents SET cells = $1::jsonb, version = version + 1
		WHERE id = $2 AND version = $3
	`, nextJSON, documentID, version)
	if err != nil {
		return 0, fmt.Errorf("compact: write document: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return 0, fmt.Errorf("compact %s: version %d moved: %w", documentID, version, store.ErrConflict)
	}

	tag, err = tx.Exec(ctx,
		"UPDATE pending_changes SET applied = TRUE WHERE seq = ANY($1) AND applied = FALSE", seqs)
	if err != nil {
		return 0, fmt.Errorf("compact: mark applied: %w", err)
	}
	if tag.RowsAffected() != int64(len(seqs)) {
		return 0, fmt.Errorf("compact %s: %d of %d changes already applied: %w",
			documentID, int64(len(seqs))-tag.RowsAffected(), len(seqs), store.ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("compact: commit: %w", err)
	}

	s.logger.Debug("compacted",
		"document", documentID,
		"changes", len(events),
		"version", version+1,
	)
	return len(events), nil
}

// Fetch compacts documentID and returns its canonical document.
func (s *Store) Fetch(ctx context.Context, documentID string) (doc.Document, error) {
	if _, err := s.Compact(ctx, documentID); err != nil {
		return doc.Document{}, fmt.Errorf("fetch: %w", err)
	}

	var cellsJSON string
	err := s.pool.QueryRow(ctx,
		"SELECT cells::text FROM documents WHERE id = $1", documentID,
	).Scan(&cellsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return doc.Document{}, fmt.Errorf("fetch %s: %w", documentID, store.ErrNotFound)
	}
	if err != nil {
		return doc.Document{}, fmt.Errorf("fetch: %w", err)
	}

	cells, err := store.UnmarshalCells(cellsJSON)
	if err != nil {
		return doc.Document{}, fmt.Errorf("fetch: %w", err)
	}
	return doc.Document{ID: documentID, Cells: cells}, nil
}

// Pending returns the change log of documentID in fold order.
func (s *Store) Pending(ctx context.Context, documentID string) ([]store.PendingChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, document_id, event::text, created_at, uploaded_at, applied
		FROM pending_changes
		WHERE document_id = $1
		ORDER BY created_at ASC, seq ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("pending: query: %w", err)
	}
	defer rows.Close()

	out := []store.PendingChange{}
	for rows.Next() {
		var (
			pc        store.PendingChange
			eventJSON string
		)
		if err := rows.Scan(&pc.Seq, &pc.DocumentID, &eventJSON, &pc.CreatedAt, &pc.UploadedAt, &pc.Applied); err != nil {
			return nil, fmt.Errorf("pending: scan: %w", err)
		}
		if pc.Event, err = store.UnmarshalEvent(eventJSON); err != nil {
			return nil, fmt.Errorf("pending: change %d: %w", pc.Seq, err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending: iterate: %w", err)
	}
	return out, nil
}

// Documents lists every stored document ordered by id.
func (s *Store) Documents(ctx context.Context) ([]store.DocumentInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.version, jsonb_array_length(d.cells), d.created_at,
		       (SELECT COUNT(*) FROM pending_changes p
		        WHERE p.document_id = d.id AND p.applied = FALSE)
		FROM documents d
		ORDER BY d.id COLLATE "C" ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("documents: query: %w", err)
	}
	defer rows.Close()

	out := []store.DocumentInfo{}
	for rows.Next() {
		var (
			info      store.DocumentInfo
			cells     int32
			unapplied int64
		)
		if err := rows.Scan(&info.ID, &info.Version, &cells, &info.CreatedAt, &unapplied); err != nil {
			return nil, fmt.Errorf("documents: scan: %w", err)
		}
		info.Cells = int(cells)
		info.Unapplied = int(unapplied)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents: iterate: %w", err)
	}
	return out, nil
}
