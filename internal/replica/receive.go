package replica

import (
	"context"
	"fmt"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/pubsub"
)

// Subscribe registers the replica on sub for its current document, using
// the session id as subscriber id. If the server later assigns a new
// document id, the subscription follows it.
func (r *Replica) Subscribe(ctx context.Context, sub pubsub.Subscriber) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.sub != nil {
		return fmt.Errorf("replica %s: already subscribed", r.sessionID)
	}
	if err := sub.Subscribe(ctx, r.DocumentID(), r.sessionID, r.handle); err != nil {
		return fmt.Errorf("replica %s: subscribe: %w", r.sessionID, err)
	}
	r.sub = sub
	return nil
}

func (r *Replica) handle(_ context.Context, env pubsub.Envelope) {
	r.Receive(env)
}

// Receive queues env for Run or Drain. It never blocks and is safe to call
// from a channel's delivery goroutine. Returns false after Close.
func (r *Replica) Receive(env pubsub.Envelope) bool {
	return r.inbox.Enqueue(env)
}

// Pending returns the number of received envelopes not yet applied.
func (r *Replica) Pending() int {
	return r.inbox.Len()
}

// Run applies received envelopes in delivery order until ctx is cancelled
// or the replica is closed.
func (r *Replica) Run(ctx context.Context) error {
	r.logger.Debug("replica receive loop starting")

	for {
		if env, ok := r.inbox.TryDequeue(); ok {
			r.applyRemote(env)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Debug("replica receive loop stopping: context cancelled")
			return ctx.Err()

		case <-r.inbox.Wait():
			// The signal channel is closed on Close, so this fires
			// immediately once the inbox is shut.
			if r.inbox.Len() == 0 && r.inbox.Closed() {
				r.logger.Debug("replica receive loop stopping: closed")
				return nil
			}
		}
	}
}

// Drain applies every envelope queued so far and returns how many were
// taken off the inbox, including discarded echoes.
func (r *Replica) Drain() int {
	n := 0
	for {
		env, ok := r.inbox.TryDequeue()
		if !ok {
			return n
		}
		r.applyRemote(env)
		n++
	}
}

// applyRemote applies one envelope unless it is an echo of this session or
// addressed to another document. Remote events never enter local history.
func (r *Replica) applyRemote(env pubsub.Envelope) {
	if env.SessionID == r.sessionID {
		r.logger.Debug("echo discarded", "event", env.Event.ID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if env.DocumentID != r.document.ID {
		r.logger.Debug("envelope for other document discarded",
			"document", env.DocumentID,
			"event", env.Event.ID,
		)
		return
	}

	r.document = change.Apply(r.document, env.Event)
	r.logger.Debug("remote change applied",
		"document", env.DocumentID,
		"event", env.Event.ID,
		"from", env.SessionID,
	)
}

// adoptDocumentID switches the replica to the id the server assigned and
// moves the subscription along with it.
func (r *Replica) adoptDocumentID(ctx context.Context, id string) {
	r.mu.Lock()
	old := r.document.ID
	r.document.ID = id
	r.mu.Unlock()

	if old == id {
		return
	}
	r.logger.Info("document id assigned", "document", id, "previous", old)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.sub == nil {
		return
	}
	if err := r.sub.Unsubscribe(ctx, old, r.sessionID); err != nil {
		r.logger.Warn("unsubscribe previous document", "document", old, "error", err)
	}
	if err := r.sub.Subscribe(ctx, id, r.sessionID, r.handle); err != nil {
		r.logger.Warn("subscribe assigned document", "document", id, "error", err)
	}
}
