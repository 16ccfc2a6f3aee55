package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/pubsub"
	"github.com/roach88/cellsync/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions

	// Ready, if set, is closed once the subscription is live (for testing).
	Ready chan struct{}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <document>",
		Short: "Follow live changes to a document",
		Long: `Subscribe to a document's change broadcast and print the document
after every change, until interrupted.

Requires a Redis address (--redis or redis_addr in the config file).

Example:
  cellsync watch notes --redis localhost:6379`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	return cmd
}

func runWatch(opts *WatchOptions, documentID string, cmd *cobra.Command) error {
	if opts.RedisAddr == "" {
		return NewExitError(ExitCommandError, "watch requires a redis address (--redis or redis_addr)")
	}

	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	logger := opts.newLogger(cmd.ErrOrStderr())
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	b, err := opts.openBackend(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLogged(b, logger)

	ch, err := opts.openChannel(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLogged(ch, logger)

	return watch(ctx, opts, b, ch, documentID, cmd.OutOrStdout())
}

// watch prints the document once, then after every envelope, until ctx is
// done. Envelopes are handed off through a buffered channel so the
// subscription's delivery goroutine never blocks on output.
func watch(ctx context.Context, opts *WatchOptions, b backend, sub pubsub.Subscriber, documentID string, w io.Writer) error {
	current, err := b.Fetch(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		current = doc.New(documentID)
	} else if err != nil {
		return WrapExitError(ExitFailure, "fetch failed", err)
	}

	envs := make(chan pubsub.Envelope, 256)
	subscriberID := "watch-" + uuid.NewString()
	err = sub.Subscribe(ctx, documentID, subscriberID, func(_ context.Context, env pubsub.Envelope) {
		select {
		case envs <- env:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "subscribe failed", err)
	}
	defer sub.Unsubscribe(context.Background(), documentID, subscriberID)

	if opts.Ready != nil {
		close(opts.Ready)
	}

	fmt.Fprintf(w, "%s: %s\n", documentID, current.Content())
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-envs:
			current = change.Apply(current, env.Event)
			fmt.Fprintf(w, "[%s %s %s] %s\n",
				env.SessionID, env.Event.Kind(), env.Event.ID, current.Content())
		}
	}
}
