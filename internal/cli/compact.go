package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cellsync/internal/store"
)

// CompactResult is the JSON payload of the compact command.
type CompactResult struct {
	Folded int `json:"folded"`
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact <document>",
		Short: "Fold pending changes into the canonical document",
		Long: `Fold every unapplied change of a document into its canonical cells.

Conflicting concurrent compactions are retried; the bound comes from
compact_retries in the config file.

Example:
  cellsync compact notes`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(rootOpts, args[0], cmd)
		},
	}
}

func runCompact(opts *RootOptions, documentID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	f := opts.formatter(cmd)

	b, err := opts.openBackend(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLogged(b, logger)

	n, err := b.Compact(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return f.Error(CodeNotFound, fmt.Sprintf("document %s not found", documentID), err)
	}
	if err != nil {
		return f.Error(CodeStorage, "compaction failed", err)
	}
	return f.Success(documentID, CompactResult{Folded: n}, fmt.Sprintf("Folded %d change(s) into %s\n", n, documentID))
}
