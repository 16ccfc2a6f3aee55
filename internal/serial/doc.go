// Package serial provides the operation serializer: a single-flight queue in
// front of a side-effecting operation.
//
// A Serializer guarantees that at most one execution of its operation is in
// flight. Calls that arrive meanwhile are queued, never run concurrently and
// never rejected. Every caller gets its own result channel that receives
// exactly the outcome of the execution its input went into.
//
// Options shape the queue:
//
//   - WithSortBy reorders pending calls by a numeric key before each dequeue.
//     The in-flight call is never affected.
//   - WithDelay debounces: the first call of a burst waits, and every call
//     arriving inside the window restarts it.
//   - WithBatch merges a call into the pending, not yet running entry. All
//     merged callers receive the result of the single execution.
//   - WithInputTransformer amends each input with the previous successful
//     result before execution (e.g. to thread a server-assigned id).
//
// A failing or panicking execution resolves only its own callers; the queue
// keeps draining. There is no cancellation of an in-flight execution; the
// context passed to Do only bounds how long the caller waits.
package serial
