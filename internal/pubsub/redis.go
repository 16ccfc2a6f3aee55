package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TopicPrefix namespaces document channels on a shared Redis.
const TopicPrefix = "cellsync:doc:"

// Topic returns the Redis channel name for a document.
func Topic(documentID string) string {
	return TopicPrefix + documentID
}

type redisSub struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// Redis is a Channel backed by Redis PUBLISH/SUBSCRIBE.
//
// Each subscription owns one connection and one delivery goroutine, so a
// subscriber sees messages in the order Redis delivered them.
type Redis struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]*redisSub // keyed by topic + "\x00" + subscriber id
	closed bool
}

// NewRedis wraps client. The caller keeps ownership of client.
func NewRedis(ctx context.Context, client *redis.Client, logger *slog.Logger) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub: redis client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pubsub: ping redis: %w", err)
	}
	return &Redis{
		client: client,
		logger: logger,
		subs:   make(map[string]*redisSub),
	}, nil
}

func subKey(documentID, subscriberID string) string {
	return documentID + "\x00" + subscriberID
}

// Publish encodes env as JSON and publishes it on the document's channel.
func (r *Redis) Publish(ctx context.Context, documentID string, env Envelope) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pubsub: encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, Topic(documentID), data).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", documentID, err)
	}
	return nil
}

// Subscribe opens a subscription and starts delivering to h. It returns after
// Redis has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, documentID, subscriberID string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	key := subKey(documentID, subscriberID)
	if _, ok := r.subs[key]; ok {
		return fmt.Errorf("pubsub: %s already subscribed to %s", subscriberID, documentID)
	}

	ps := r.client.Subscribe(ctx, Topic(documentID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("pubsub: subscribe %s: %w", documentID, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSub{ps: ps, cancel: cancel, done: make(chan struct{})}
	r.subs[key] = sub

	go r.deliver(subCtx, documentID, sub, h)
	return nil
}

func (r *Redis) deliver(ctx context.Context, documentID string, sub *redisSub, h Handler) {
	defer close(sub.done)

	ch := sub.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping undecodable envelope",
					"document_id", documentID,
					"error", err,
				)
				continue
			}
			h(ctx, env)
		}
	}
}

// Unsubscribe stops delivery for subscriberID and waits for its goroutine.
func (r *Redis) Unsubscribe(_ context.Context, documentID, subscriberID string) error {
	r.mu.Lock()
	key := subKey(documentID, subscriberID)
	sub, ok := r.subs[key]
	delete(r.subs, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.stop(sub)
}

func (r *Redis) stop(sub *redisSub) error {
	sub.cancel()
	err := sub.ps.Close()
	<-sub.done
	if err != nil {
		return fmt.Errorf("pubsub: close subscription: %w", err)
	}
	return nil
}

// Close stops every subscription. The Redis client is left open.
func (r *Redis) Close() error {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[string]*redisSub)
	r.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := r.stop(sub); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Channel = (*Redis)(nil)
