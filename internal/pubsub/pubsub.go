// Package pubsub defines the publish/subscribe channel that fans change
// events out to every session editing a document.
//
// Envelopes carry the originating session id explicitly. The channel never
// filters by session; echo suppression is the receiver's decision.
//
// Each subscriber receives envelopes for a topic in the order the channel
// accepted them. Handlers run on the channel's delivery goroutine and must
// not block or publish synchronously.
package pubsub

import (
	"context"
	"errors"

	"github.com/roach88/cellsync/internal/change"
)

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("pubsub: channel closed")

// Envelope is one broadcast change event.
type Envelope struct {
	DocumentID string       `json:"document_id"`
	SessionID  string       `json:"session_id"`
	Event      change.Event `json:"event"`
	CreatedAt  int64        `json:"created_at"`
}

// Handler receives envelopes for a subscribed document.
type Handler func(ctx context.Context, env Envelope)

// Publisher broadcasts envelopes.
type Publisher interface {
	Publish(ctx context.Context, documentID string, env Envelope) error
}

// Subscriber manages topic subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, documentID, subscriberID string, h Handler) error
	Unsubscribe(ctx context.Context, documentID, subscriberID string) error
}

// Channel combines both sides.
type Channel interface {
	Publisher
	Subscriber
	Close() error
}
