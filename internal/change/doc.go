// Package change implements the invertible edit algebra for cell documents.
//
// Every edit is an Event holding two Actions: Up performs the edit and Down
// undoes it exactly. An insert's Down deletes the same cells; a delete's Down
// reinserts the same cells before the same anchor.
//
// Apply is the only sanctioned way to mutate a document. Local edits and
// edits received from peers go through the same function, so replicas that
// apply the same events in the same order end with identical documents.
// There is no operational transform: ordering is the caller's job.
//
// Invert swaps Up and Down and assigns a new event id, because an inversion
// is a new logical operation and collaborators may deduplicate by id.
package change
