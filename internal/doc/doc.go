// Package doc provides the cell document model for cellsync.
//
// A Document is an ordered sequence of immutable cells. Edits never change a
// cell in place; they insert or remove whole cells. The order of cells is the
// sole source of truth for the text content.
//
// # Addressing
//
// Cells are addressed by id, never by position, so that an edit computed
// against one replica still lands correctly on another whose positions have
// shifted. The reserved id Terminator names the logical append point after
// the last real cell. It is never stored; View and Layout append it.
//
// Lookups of an unknown id resolve to the Terminator position. A peer may have
// deleted the referenced cell concurrently, and rejecting the edit would block
// convergence.
//
// All operations are pure: they return a new Document and never modify the
// cells slice of their input.
package doc
