package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cellsync/internal/change"
	"github.com/roach88/cellsync/internal/doc"
	"github.com/roach88/cellsync/internal/hub"
	"github.com/roach88/cellsync/internal/replica"
	"github.com/roach88/cellsync/internal/store"
)

// CursorOptions locates the cursor for an edit. Index wins over Row/Col.
type CursorOptions struct {
	Index int // cell index, -1 for the end of the document
	Row   int // layout row, -1 when unset
	Col   int
	Cols  int // layout width used with Row/Col
}

// EditOptions holds flags for the insert and backspace commands.
type EditOptions struct {
	*RootOptions
	Cursor CursorOptions
}

// EditResult is the JSON payload of an edit command.
type EditResult struct {
	Event   string `json:"event"`
	Content string `json:"content"`
}

func addCursorFlags(cmd *cobra.Command, c *CursorOptions) {
	cmd.Flags().IntVar(&c.Index, "at", -1, "cursor as a cell index (default end of document)")
	cmd.Flags().IntVar(&c.Row, "row", -1, "cursor row in the wrapped layout")
	cmd.Flags().IntVar(&c.Col, "col", 0, "cursor column in the wrapped layout")
	cmd.Flags().IntVar(&c.Cols, "cols", 80, "layout width for --row/--col")
}

// resolve turns the cursor flags into the id of the cell the cursor sits
// before.
func (c CursorOptions) resolve(d doc.Document) doc.CellID {
	if c.Index >= 0 {
		if c.Index >= len(d.Cells) {
			return doc.Terminator
		}
		return d.Cells[c.Index].ID
	}
	if c.Row >= 0 {
		return doc.CellAt(doc.Layout(d, c.Cols), c.Row, c.Col)
	}
	return doc.Terminator
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <document> <text>",
		Short: "Insert text at a cursor",
		Long: `Insert text into a document and upload the change.

Use "new" as the document to create one with a server-assigned id.
With --redis, the change is broadcast to every watcher of the document.

Example:
  cellsync insert notes "hello"
  cellsync insert notes "X" --at 0
  cellsync insert notes "!" --row 1 --col 4 --cols 40
  cellsync insert new "first line"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[1]
			return runEdit(opts, args[0], cmd, func(r *replica.Replica, cursor doc.CellID) (change.Event, bool) {
				return r.InsertText(cursor, text)
			})
		},
	}
	addCursorFlags(cmd, &opts.Cursor)

	return cmd
}

// NewBackspaceCommand creates the backspace command.
func NewBackspaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backspace <document>",
		Short: "Delete the character before a cursor",
		Long: `Delete the cell immediately before the cursor and upload the change.
At the start of the document this does nothing.

Example:
  cellsync backspace notes
  cellsync backspace notes --at 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd, func(r *replica.Replica, cursor doc.CellID) (change.Event, bool) {
				return r.Backspace(cursor)
			})
		},
	}
	addCursorFlags(cmd, &opts.Cursor)

	return cmd
}

// editFunc performs one local edit on the replica.
type editFunc func(r *replica.Replica, cursor doc.CellID) (change.Event, bool)

func runEdit(opts *EditOptions, documentID string, cmd *cobra.Command, edit editFunc) error {
	ctx := commandContext(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	f := opts.formatter(cmd)

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

	current, err := startingDocument(ctx, b, documentID)
	if err != nil {
		return f.Error(CodeStorage, "fetch failed", err)
	}

	// The replica drops upload results; keep the error for the exit code.
	h := hub.New(b, ch, hub.WithLogger(logger))
	var uploadErr error
	up := replica.UploaderFunc(func(ctx context.Context, u replica.Upload) (string, error) {
		id, err := h.Upload(ctx, u)
		if err != nil {
			uploadErr = err
		}
		return id, err
	})

	r := replica.New(documentID, up,
		replica.WithDocument(current),
		replica.WithUploadDelay(opts.UploadDelay),
		replica.WithLogger(logger),
	)
	defer r.Close(ctx)

	ev, ok := edit(r, opts.Cursor.resolve(current))
	if !ok {
		return f.Success(documentID, EditResult{Content: current.Content()}, "Nothing to do.\n")
	}
	f.VerboseLog("uploading %s (%s %q)", ev.ID, ev.Kind(), doc.Text(ev.Cells()))

	if err := r.Flush(ctx); err != nil {
		return f.Error(CodeUpload, "upload interrupted", err)
	}
	if uploadErr != nil {
		return f.Error(CodeUpload, "upload failed", uploadErr)
	}

	d := r.Document()
	return f.Success(d.ID, EditResult{Event: ev.ID, Content: d.Content()},
		fmt.Sprintf("%s: %s\n", d.ID, d.Content()))
}

// startingDocument fetches the canonical document. Unsaved and not yet
// existing documents start empty; the first upload creates them.
func startingDocument(ctx context.Context, b backend, documentID string) (doc.Document, error) {
	if documentID == doc.UnsavedID {
		return doc.New(documentID), nil
	}
	d, err := b.Fetch(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return doc.New(documentID), nil
	}
	return d, err
}
