// Package store provides the SQLite persistence collaborator: a log of
// pending change events per document plus the canonical, compacted document.
//
// # Tables
//
//   - documents: canonical cells (JSON) and a version counter
//   - pending_changes: one row per submitted event with created_at,
//     uploaded_at and an applied flag
//
// # Compaction
//
// Compact folds every unapplied change of a document into its canonical
// cells inside one transaction. Changes are folded in created_at order, ties
// broken by insertion order (seq). The document row is written with
// "version = version + 1 WHERE version = ?" and each change is flipped with
// "applied = 1 WHERE applied = 0"; if either affects no row the transaction
// is a conflict and is retried under the store's RetryPolicy. A change is
// therefore folded at most once no matter how many compactions overlap.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: transactions take the write lock at BEGIN
package store
