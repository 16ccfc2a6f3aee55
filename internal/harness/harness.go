package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/hub"
	"github.com/roach88/cellsync/internal/pubsub"
	"github.com/roach88/cellsync/internal/replica"
	"github.com/roach88/cellsync/internal/store"
	"github.com/roach88/cellsync/internal/testutil"
)

// DefaultDocument is the document id used when a scenario names none.
const DefaultDocument = "doc"

// flushTimeout bounds how long a step waits for its uploads.
const flushTimeout = 5 * time.Second

// Harness holds the live objects of one scenario run.
type Harness struct {
	store    *store.Store
	channel  *pubsub.Memory
	hub      *hub.Hub
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	order    []string
	sessions map[string]*replica.Replica
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database.
//
// Execution flow:
// 1. Create store, channel, hub, and one replica per session
// 2. Execute steps, flushing the acting session after each
// 3. Fetch the canonical document and change log
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:",
		store.WithLogger(logger),
		store.WithIDGenerator(change.NewSequenceGenerator(DefaultDocument)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ch := pubsub.NewMemory(logger)
	defer ch.Close()

	h := &Harness{
		store:    st,
		channel:  ch,
		hub:      hub.New(st, ch, hub.WithLogger(logger)),
		clock:    testutil.NewDeterministicClock(),
		logger:   logger,
		sessions: make(map[string]*replica.Replica),
	}
	defer h.closeSessions(ctx)

	docID := scenario.Document
	if docID == "" {
		docID = DefaultDocument
	}
	for _, name := range scenario.Sessions {
		if err := h.addSession(ctx, docID, name); err != nil {
			return nil, err
		}
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action(), err)
		}
	}

	final, err := h.collect(ctx, scenario.Name)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Snapshot = final.snapshot
	for _, msg := range EvaluateAssertions(final, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) addSession(ctx context.Context, docID, name string) error {
	r := replica.New(docID, h.hub,
		replica.WithSessionID(name),
		replica.WithIDGenerator(change.NewSequenceGenerator(name)),
		replica.WithClock(h.clock),
		replica.WithLogger(h.logger),
	)
	if err := r.Subscribe(ctx, h.channel); err != nil {
		return fmt.Errorf("session %s: %w", name, err)
	}
	h.order = append(h.order, name)
	h.sessions[name] = r
	return nil
}

func (h *Harness) closeSessions(ctx context.Context) {
	for _, name := range h.order {
		_ = h.sessions[name].Close(ctx)
	}
}

// execute runs one step and waits for the uploads it caused.
func (h *Harness) execute(ctx context.Context, step Step) error {
	if step.Sync && step.Session == "" {
		for _, name := range h.order {
			h.sessions[name].Drain()
		}
		return nil
	}

	r, ok := h.sessions[step.Session]
	if !ok {
		return fmt.Errorf("unknown session %q", step.Session)
	}

	d := r.Document()
	switch {
	case step.Insert != nil:
		r.InsertText(cursor(d, step.At), *step.Insert)
	case step.Backspace:
		r.Backspace(cursor(d, step.At))
	case step.Delete != nil:
		r.DeleteSelection(cursor(d, &step.Delete.From), cursor(d, &step.Delete.To))
	case step.Undo:
		r.Undo()
	case step.Redo:
		r.Redo()
	case step.Sync:
		r.Drain()
		return nil
	default:
		return fmt.Errorf("no action")
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	return r.Flush(flushCtx)
}

// cursor resolves a cell index to the id of the cell the cursor sits
// before. Nil or out of range means the end of the document.
func cursor(d doc.Document, at *int) doc.CellID {
	if at == nil || *at >= len(d.Cells) {
		return doc.Terminator
	}
	return d.Cells[*at].ID
}

// finalState is what assertions inspect.
type finalState struct {
	snapshot Snapshot
	server   doc.Document
	sessions map[string]doc.Document
	log      []store.PendingChange
}

func (h *Harness) collect(ctx context.Context, name string) (*finalState, error) {
	docs, err := h.store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) > 1 {
		return nil, fmt.Errorf("expected at most one server document, got %d", len(docs))
	}

	final := &finalState{
		sessions: make(map[string]doc.Document, len(h.order)),
		log:      []store.PendingChange{},
	}
	if len(docs) == 1 {
		final.server, err = h.store.Fetch(ctx, docs[0].ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		final.log, err = h.store.Pending(ctx, docs[0].ID)
		if err != nil {
			return nil, fmt.Errorf("pending: %w", err)
		}
	}

	snap := Snapshot{
		Scenario: name,
		Document: final.server.ID,
		Server:   final.server.Content(),
		Sessions: make([]SessionSnapshot, 0, len(h.order)),
		Log:      make([]LogEntry, 0, len(final.log)),
	}
	for _, n := range h.order {
		r := h.sessions[n]
		d := r.Document()
		final.sessions[n] = d
		snap.Sessions = append(snap.Sessions, SessionSnapshot{
			Name:     n,
			Document: d.ID,
			Content:  d.Content(),
			Unsynced: r.Pending(),
		})
	}
	for _, pc := range final.log {
		snap.Log = append(snap.Log, LogEntry{
			Event:     pc.Event.ID,
			Action:    string(pc.Event.Kind()),
			Text:      doc.Text(pc.Event.Cells()),
			CreatedAt: pc.CreatedAt,
			Applied:   pc.Applied,
		})
	}
	final.snapshot = snap
	return final, nil
}
