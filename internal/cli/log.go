package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/store"
)

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <document>",
		Short: "List the document's change log",
		Long: `List every stored change of a document in fold order, including
changes already folded into the canonical cells.

Example:
  cellsync log notes
  cellsync log notes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, args[0], cmd)
		},
	}
}

func runLog(opts *RootOptions, documentID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	f := opts.formatter(cmd)

	b, err := opts.openBackend(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLogged(b, logger)

	changes, err := b.Pending(ctx, documentID)
	if err != nil {
		return f.Error(CodeStorage, "reading change log failed", err)
	}
	return f.Success(documentID, changes, formatLog(changes))
}

// formatLog renders one tab-aligned line per change.
func formatLog(changes []store.PendingChange) string {
	if len(changes) == 0 {
		return "No changes.\n"
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tCREATED\tAPPLIED\tEVENT\tACTION\tTEXT")
	for _, c := range changes {
		applied := "no"
		if c.Applied {
			applied = "yes"
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%q\n",
			c.Seq, c.CreatedAt, applied, c.Event.ID, c.Event.Kind(), doc.Text(c.Event.Cells()))
	}
	w.Flush()
	return sb.String()
}
