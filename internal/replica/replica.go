package replica

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/history"
	"github.com/roach88/cellsync/internal/pubsub"
	"github.com/roach88/cellsync/internal/serial"
)

// Replica is one session's view of a document.
type Replica struct {
	sessionID string
	ids       change.IDGenerator
	clock     Clock
	uploader  Uploader
	logger    *slog.Logger
	delay     time.Duration

	uploads *serial.Serializer[Upload, string]
	inbox   *inbox

	mu       sync.Mutex
	document doc.Document
	history  *history.History

	subMu sync.Mutex
	sub   pubsub.Subscriber
}

// Option configures a Replica.
type Option func(*Replica)

// WithSessionID sets the session id. Defaults to a random UUID.
func WithSessionID(id string) Option {
	return func(r *Replica) { r.sessionID = id }
}

// WithIDGenerator sets the generator for event and cell ids.
// Defaults to change.UUIDv7Generator.
func WithIDGenerator(ids change.IDGenerator) Option {
	return func(r *Replica) { r.ids = ids }
}

// WithClock sets the timestamp source. Defaults to WallClock.
func WithClock(c Clock) Option {
	return func(r *Replica) { r.clock = c }
}

// WithUploadDelay sets the debounce window for uploads.
func WithUploadDelay(d time.Duration) Option {
	return func(r *Replica) { r.delay = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) { r.logger = l }
}

// WithDocument seeds the replica with an existing document, e.g. one
// fetched from the server.
func WithDocument(d doc.Document) Option {
	return func(r *Replica) { r.document = d.Clone() }
}

// New creates a replica of documentID that uploads through up. Use
// doc.UnsavedID for a document the server has not seen yet.
func New(documentID string, up Uploader, opts ...Option) *Replica {
	r := &Replica{
		sessionID: uuid.NewString(),
		ids:       change.UUIDv7Generator{},
		clock:     WallClock{},
		uploader:  up,
		logger:    slog.Default(),
		inbox:     newInbox(),
		document:  doc.New(documentID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.document.ID == "" {
		r.document.ID = documentID
	}
	r.logger = r.logger.With("session", r.sessionID)
	r.history = history.New(r.ids)
	r.uploads = newUploadSerializer(r, r.delay)
	return r
}

// SessionID returns the session id stamped on every upload.
func (r *Replica) SessionID() string {
	return r.sessionID
}

// DocumentID returns the current document id. It changes once when the
// server assigns an id to an unsaved document.
func (r *Replica) DocumentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document.ID
}

// Document returns a copy of the local document.
func (r *Replica) Document() doc.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document.Clone()
}

// CanUndo reports whether Undo would do anything.
func (r *Replica) CanUndo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.CanUndo()
}

// CanRedo reports whether Redo would do anything.
func (r *Replica) CanRedo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.CanRedo()
}

// InsertText inserts text before the cell at cursor, one cell per character.
// Returns false when text is empty.
func (r *Replica) InsertText(cursor doc.CellID, text string) (change.Event, bool) {
	if text == "" {
		return change.Event{}, false
	}
	return r.InsertCells(cursor, doc.NewCells(text, r.ids))
}

// InsertCells inserts cells before the cell at cursor.
// Returns false when cells is empty.
func (r *Replica) InsertCells(cursor doc.CellID, cells []doc.Cell) (change.Event, bool) {
	if len(cells) == 0 {
		return change.Event{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ev := change.NewInsert(r.ids, cursor, cells)
	r.commitLocked(ev)
	return ev, true
}

// Backspace removes the cell immediately before cursor.
// Returns false at the start of the document.
func (r *Replica) Backspace(cursor doc.CellID) (change.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.document.FindIndex(cursor) == 0 {
		return change.Event{}, false
	}
	_, removed := doc.DeleteRange(r.document, cursor, 1)
	if len(removed) == 0 {
		return change.Event{}, false
	}
	return r.deleteLocked(removed), true
}

// DeleteCells removes the given cells. Cells not in the document are
// ignored. The cells that remain must form one contiguous run so the
// inverse can restore them before a single anchor; otherwise nothing is
// removed. Returns false when nothing was removed.
func (r *Replica) DeleteCells(cells []doc.Cell) (change.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, removed := doc.Delete(r.document, cells)
	if len(removed) == 0 {
		return change.Event{}, false
	}
	if !r.document.Contiguous(removed) {
		r.logger.Debug("delete skipped: cells not contiguous", "cells", len(removed))
		return change.Event{}, false
	}
	return r.deleteLocked(removed), true
}

// DeleteSelection removes the cells between two cursors, in either order.
func (r *Replica) DeleteSelection(from, to doc.CellID) (change.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel := r.document.Between(from, to)
	if len(sel) == 0 {
		return change.Event{}, false
	}
	return r.deleteLocked(sel), true
}

// deleteLocked builds a delete event whose inverse restores removed in
// place. Caller holds r.mu.
func (r *Replica) deleteLocked(removed []doc.Cell) change.Event {
	anchor := r.document.AnchorAfter(removed)
	ev := change.NewDelete(r.ids, anchor, removed)
	r.commitLocked(ev)
	return ev
}

// commitLocked applies ev, records it for undo, and uploads it.
func (r *Replica) commitLocked(ev change.Event) {
	r.document = change.Apply(r.document, ev)
	r.history.Record(ev)
	r.enqueueUpload(ev)
}

// Undo reverts the most recent local edit and uploads the inverse.
func (r *Replica) Undo() (change.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ev, ok := r.history.Undo(r.document)
	if !ok {
		return change.Event{}, false
	}
	r.document = next
	r.enqueueUpload(ev)
	return ev, true
}

// Redo re-applies the most recently undone edit and uploads it.
func (r *Replica) Redo() (change.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ev, ok := r.history.Redo(r.document)
	if !ok {
		return change.Event{}, false
	}
	r.document = next
	r.enqueueUpload(ev)
	return ev, true
}

// Flush waits until every upload handed to the serializer has finished.
func (r *Replica) Flush(ctx context.Context) error {
	return r.uploads.Wait(ctx)
}

// Close stops accepting uploads and envelopes and drops the subscription.
// Uploads already queued still run; call Flush first to wait for them.
func (r *Replica) Close(ctx context.Context) error {
	r.uploads.Close()
	r.inbox.Close()

	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.sub == nil {
		return nil
	}
	err := r.sub.Unsubscribe(ctx, r.DocumentID(), r.sessionID)
	r.sub = nil
	return err
}
