// Package harness runs multi-session editing scenarios end to end.
//
// A scenario names a set of sessions editing one document and a list of
// steps (insert, backspace, delete, undo, redo, sync). Each session is a
// real replica uploading through a hub into an in-memory SQLite store, with
// an in-process pubsub channel between them.
//
// # Determinism
//
// Sessions use their name as session id and as the prefix of every id they
// mint, and all share one logical clock. After each step the acting
// session's uploads are flushed, so the server commit order equals the step
// order. Remote envelopes are only applied on a sync step, which makes
// interleavings explicit in the scenario file.
//
// # Golden Files
//
// RunWithGolden compares the final snapshot (server content, per-session
// content, and the server change log) against testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
