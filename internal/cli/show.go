package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/store"
)

// ShowResult is the JSON payload of the show command.
type ShowResult struct {
	Content string     `json:"content"`
	Cells   []doc.Cell `json:"cells"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document>",
		Short: "Print the canonical document",
		Long: `Compact the document's pending changes and print its text.

Example:
  cellsync show notes
  cellsync show notes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
}

func runShow(opts *RootOptions, documentID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	f := opts.formatter(cmd)

	b, err := opts.openBackend(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLogged(b, logger)

	d, err := fetch(ctx, f, b, documentID)
	if err != nil {
		return err
	}
	return f.Success(d.ID, ShowResult{Content: d.Content(), Cells: d.Cells}, d.Content()+"\n")
}

// fetch reads the canonical document, reporting failures through f.
func fetch(ctx context.Context, f *OutputFormatter, b backend, documentID string) (doc.Document, error) {
	d, err := b.Fetch(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return d, f.Error(CodeNotFound, fmt.Sprintf("document %s not found", documentID), err)
	}
	if err != nil {
		return d, f.Error(CodeStorage, "fetch failed", err)
	}
	return d, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeLogged(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("error closing", "error", err)
	}
}
