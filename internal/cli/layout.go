package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cellsync/internal/doc"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	*RootOptions
	Cols int
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "layout <document>",
		Short: "Print the document wrapped into display rows",
		Long: `Wrap the canonical document at --cols cells per row. Newlines end a
row; the cursor position after the last character is shown as "|".

Example:
  cellsync layout notes --cols 20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Cols, "cols", 80, "row width in cells")

	return cmd
}

func runLayout(opts *LayoutOptions, documentID string, cmd *cobra.Command) error {
	if opts.Cols <= 0 {
		return NewExitError(ExitCommandError, "--cols must be positive")
	}

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

	rows := renderRows(doc.Layout(d, opts.Cols))
	return f.Success(d.ID, rows, strings.Join(rows, "\n")+"\n")
}

// renderRows draws each layout row as text. Newline cells are dropped and
// the terminator is drawn as "|".
func renderRows(layout [][]doc.Cell) []string {
	rows := make([]string, 0, len(layout))
	for _, cells := range layout {
		var sb strings.Builder
		for _, c := range cells {
			switch {
			case c.ID == doc.Terminator:
				sb.WriteString("|")
			case c.Value == doc.Newline:
			default:
				sb.WriteString(c.Value)
			}
		}
		rows = append(rows, sb.String())
	}
	return rows
}
