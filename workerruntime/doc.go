// Package workerruntime is the reference Worker runtime library: the
// counterpart loaded inside a worker that reads requests, looks up
// registered methods, runs them, and writes responses. If no other
// worker script is supplied, this is the default runtime, and it only
// supports inline functions.
//
// A Runtime is an explicit, independently constructed value owning its
// own method registry, in-flight task table, and termination state —
// no package-level mutable state.
package workerruntime
