package replica

import (
	"context"
	"time"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/serial"
)

// Change is one authored event with its creation timestamp.
type Change struct {
	Event     change.Event `json:"event"`
	CreatedAt int64        `json:"created_at"`
}

// Upload is the body a replica sends to the persistence side. Changes are
// in authoring order.
type Upload struct {
	DocumentID string   `json:"document_id"`
	SessionID  string   `json:"session_id"`
	Changes    []Change `json:"changes"`
	UploadedAt int64    `json:"uploaded_at"`
}

// Uploader persists and broadcasts an upload, returning the document id the
// changes were stored under.
type Uploader interface {
	Upload(ctx context.Context, up Upload) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, up Upload) (string, error)

// Upload calls f.
func (f UploaderFunc) Upload(ctx context.Context, up Upload) (string, error) {
	return f(ctx, up)
}

// createdAt is the sort key: the creation time of the oldest change.
func (up Upload) createdAt() int64 {
	if len(up.Changes) == 0 {
		return 0
	}
	return up.Changes[0].CreatedAt
}

func mergeUploads(acc, next Upload) Upload {
	changes := make([]Change, 0, len(acc.Changes)+len(next.Changes))
	changes = append(changes, acc.Changes...)
	changes = append(changes, next.Changes...)
	acc.Changes = changes
	return acc
}

// passDocumentID threads the id assigned by the previous upload into the
// next one.
func passDocumentID(_ context.Context, next Upload, prev string) (Upload, error) {
	if prev != "" {
		next.DocumentID = prev
	}
	return next, nil
}

func newUploadSerializer(r *Replica, delay time.Duration) *serial.Serializer[Upload, string] {
	return serial.New(r.runUpload,
		serial.WithSortBy[Upload, string](Upload.createdAt, serial.Ascending),
		serial.WithBatch[Upload, string](mergeUploads),
		serial.WithInputTransformer[Upload, string](passDocumentID),
		serial.WithDelay[Upload, string](delay),
		serial.WithLogger[Upload, string](r.logger),
	)
}

// runUpload executes on the serializer's drain goroutine.
func (r *Replica) runUpload(ctx context.Context, up Upload) (string, error) {
	up.UploadedAt = r.clock.Now()

	id, err := r.uploader.Upload(ctx, up)
	if err != nil {
		r.logger.Warn("upload failed",
			"document", up.DocumentID,
			"session", r.sessionID,
			"changes", len(up.Changes),
			"error", err,
		)
		return "", err
	}

	r.logger.Debug("uploaded",
		"document", id,
		"session", r.sessionID,
		"changes", len(up.Changes),
	)
	if id != up.DocumentID {
		r.adoptDocumentID(ctx, id)
	}
	return id, nil
}

// enqueueUpload hands ev to the serializer. Caller holds r.mu.
func (r *Replica) enqueueUpload(ev change.Event) {
	docID := r.document.ID
	if docID == "" {
		docID = doc.UnsavedID
	}
	r.uploads.Submit(Upload{
		DocumentID: docID,
		SessionID:  r.sessionID,
		Changes:    []Change{{Event: ev, CreatedAt: r.clock.Now()}},
	})
}
