package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/cellsync/internal/hub"
	"github.com/roach88/cellsync/internal/pgstore"
	"github.com/roach88/cellsync/internal/pubsub"
	"github.com/roach88/cellsync/internal/store"
)

// backend is the persistence surface the commands need. Both store.Store
// and pgstore.Store satisfy it.
type backend interface {
	hub.Persistence
	Pending(ctx context.Context, documentID string) ([]store.PendingChange, error)
	Documents(ctx context.Context) ([]store.DocumentInfo, error)
	Close() error
}

var (
	_ backend = (*store.Store)(nil)
	_ backend = (*pgstore.Store)(nil)
)

// retryPolicy returns the compaction retry policy, honoring compact_retries.
func (o *RootOptions) retryPolicy() store.RetryPolicy {
	p := store.DefaultRetryPolicy()
	if o.CompactRetries > 0 {
		p.Attempts = o.CompactRetries
	}
	return p
}

// openBackend opens PostgreSQL when a URL is configured and SQLite otherwise.
func (o *RootOptions) openBackend(ctx context.Context, logger *slog.Logger) (backend, error) {
	if o.PostgresURL != "" {
		logger.Debug("opening postgres")
		st, err := pgstore.Open(ctx, o.PostgresURL,
			pgstore.WithLogger(logger),
			pgstore.WithRetryPolicy(o.retryPolicy()),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open postgres", err)
		}
		return st, nil
	}

	if o.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database configured")
	}
	logger.Debug("opening database", "path", o.Database)
	st, err := store.Open(o.Database,
		store.WithLogger(logger),
		store.WithRetryPolicy(o.retryPolicy()),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// channel is a pubsub.Channel plus whatever else must be closed with it.
type channel struct {
	pubsub.Channel
	client *redis.Client
}

func (c *channel) Close() error {
	err := c.Channel.Close()
	if c.client != nil {
		if cerr := c.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// openChannel connects to Redis when an address is configured. Without one,
// edits are broadcast to an in-process channel nobody else listens on.
func (o *RootOptions) openChannel(ctx context.Context, logger *slog.Logger) (*channel, error) {
	if o.RedisAddr == "" {
		return &channel{Channel: pubsub.NewMemory(logger)}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: o.RedisAddr})
	ch, err := pubsub.NewRedis(ctx, client, logger)
	if err != nil {
		client.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to connect to redis at %s", o.RedisAddr), err)
	}
	return &channel{Channel: ch, client: client}, nil
}
