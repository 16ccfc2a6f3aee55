// Package hub is the server side of the synchronization layer. It persists
// each uploaded change, broadcasts it to every session on the document, and
// compacts the pending log.
package hub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/pubsub"
	"github.com/roach88/cellsync/internal/replica"
)

// Persistence is the durable side of the hub. Implemented by store.Store
// (SQLite) and pgstore.Store (PostgreSQL).
type Persistence interface {
	Submit(ctx context.Context, documentID string, ev change.Event, createdAt, uploadedAt int64) (string, error)
	Compact(ctx context.Context, documentID string) (int, error)
	Fetch(ctx context.Context, documentID string) (doc.Document, error)
}

// Hub accepts uploads from replicas.
//
// Thread-safety: safe for concurrent use; exclusion is the persistence
// layer's job.
type Hub struct {
	store   Persistence
	channel pubsub.Publisher
	logger  *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a hub over p that broadcasts on ch.
func New(p Persistence, ch pubsub.Publisher, opts ...Option) *Hub {
	h := &Hub{
		store:   p,
		channel: ch,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upload stores every change of up, publishes them in order, and compacts
// the document. It returns the document id the changes were stored under,
// which differs from up.DocumentID when the replica's document was unsaved.
//
// A storage failure fails the upload. Changes stored before the failing one
// are durable, so they are still published and compacted before the error is
// returned. Publish and compaction failures are logged only: the changes are
// durable and the next compaction folds them.
func (h *Hub) Upload(ctx context.Context, up replica.Upload) (string, error) {
	docID := up.DocumentID
	if len(up.Changes) == 0 {
		return docID, nil
	}

	stored := 0
	var submitErr error
	for _, c := range up.Changes {
		id, err := h.store.Submit(ctx, docID, c.Event, c.CreatedAt, up.UploadedAt)
		if err != nil {
			submitErr = fmt.Errorf("upload %s: %w", c.Event.ID, err)
			break
		}
		docID = id
		stored++
	}
	if stored == 0 {
		return "", submitErr
	}

	h.publish(ctx, docID, up.SessionID, up.Changes[:stored])

	if n, err := h.store.Compact(ctx, docID); err != nil {
		h.logger.Warn("compaction failed", "document", docID, "error", err)
	} else {
		h.logger.Debug("upload committed",
			"document", docID,
			"session", up.SessionID,
			"changes", stored,
			"folded", n,
		)
	}

	if submitErr != nil {
		h.logger.Warn("upload partially stored",
			"document", docID,
			"stored", stored,
			"changes", len(up.Changes),
			"error", submitErr,
		)
		return "", submitErr
	}
	return docID, nil
}

func (h *Hub) publish(ctx context.Context, docID, sessionID string, changes []replica.Change) {
	for _, c := range changes {
		env := pubsub.Envelope{
			DocumentID: docID,
			SessionID:  sessionID,
			Event:      c.Event,
			CreatedAt:  c.CreatedAt,
		}
		if err := h.channel.Publish(ctx, docID, env); err != nil {
			h.logger.Warn("publish failed",
				"document", docID,
				"event", c.Event.ID,
				"error", err,
			)
		}
	}
}

// Fetch returns the canonical document.
func (h *Hub) Fetch(ctx context.Context, documentID string) (doc.Document, error) {
	return h.store.Fetch(ctx, documentID)
}

var _ replica.Uploader = (*Hub)(nil)
