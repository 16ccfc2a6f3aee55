// Package replica is the client side of the synchronization layer: one
// editing session's local copy of a document.
//
// Local edits apply optimistically, are recorded for undo, and are handed to
// an upload serializer. Uploads run one at a time, ordered by creation time,
// merged while waiting, and carry forward the document id the server
// assigned to an unsaved document. A failed upload is logged; local state is
// never rolled back.
//
// Remote envelopes arrive through Receive into an ordered inbox and are
// applied by Run (or Drain) strictly in delivery order. Envelopes authored by
// this session are echoes and are discarded, as are envelopes for another
// document.
//
// Thread-safety model:
//   - Local edit methods, Receive, and the accessors: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Drain: must not race with Run
package replica
