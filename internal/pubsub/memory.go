package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type memorySub struct {
	id string
	h  Handler
}

// Memory is an in-process Channel.
//
// Publish delivers synchronously to every subscriber of the topic while
// holding a delivery lock, so all subscribers observe one total order.
type Memory struct {
	logger *slog.Logger

	deliverMu sync.Mutex

	mu     sync.RWMutex
	topics map[string][]memorySub
	closed bool
}

// NewMemory creates an empty in-process channel.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		logger: logger,
		topics: make(map[string][]memorySub),
	}
}

// Publish delivers env to the current subscribers of documentID.
func (m *Memory) Publish(ctx context.Context, documentID string, env Envelope) error {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]memorySub(nil), m.topics[documentID]...)
	m.mu.RUnlock()

	m.logger.Debug("publish",
		"document_id", documentID,
		"event_id", env.Event.ID,
		"subscribers", len(subs),
	)
	for _, s := range subs {
		s.h(ctx, env)
	}
	return nil
}

// Subscribe registers h under subscriberID for documentID.
func (m *Memory) Subscribe(_ context.Context, documentID, subscriberID string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, s := range m.topics[documentID] {
		if s.id == subscriberID {
			return fmt.Errorf("pubsub: %s already subscribed to %s", subscriberID, documentID)
		}
	}
	m.topics[documentID] = append(m.topics[documentID], memorySub{id: subscriberID, h: h})
	return nil
}

// Unsubscribe removes subscriberID from documentID. Unknown ids are ignored.
func (m *Memory) Unsubscribe(_ context.Context, documentID, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.topics[documentID]
	for i, s := range subs {
		if s.id == subscriberID {
			m.topics[documentID] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.topics[documentID]) == 0 {
		delete(m.topics, documentID)
	}
	return nil
}

// Close drops all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.topics = make(map[string][]memorySub)
	return nil
}

var _ Channel = (*Memory)(nil)
