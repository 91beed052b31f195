// Package sharedqueue implements the optional Shared-memory Queue
// Bridge. The wire-level shared-memory ring it bridges
// to is explicitly an out-of-scope external collaborator; this package
// provides the in-process equivalent the Pool talks to, built the same
// way as a real shared-memory ring would be: a lock-free, fixed,
// power-of-two-capacity buffer with no locking on the hot path.
//
// The implementation is gated behind the shared_queue build tag so a
// binary that doesn't need it never pays for the atomic machinery;
// Available reports whether the tag was set, and callers fall back to
// queue.NewFIFO() when it wasn't.
package sharedqueue
