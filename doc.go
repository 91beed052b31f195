// Package taskpool implements a general-purpose worker pool: a
// single-threaded-semantics scheduler that dispatches tasks to a
// managed set of worker executors running over a pluggable transport
// (in-process goroutine or separate OS process), correlates
// request/response traffic across that boundary, and enforces
// cancellation, timeout, cleanup, and graceful/forced termination.
//
// The dataflow is: caller -> Pool.Submit -> a queue.Queue -> the Pool's
// dispatch loop -> a chosen worker handler -> a transport.Channel ->
// the worker runtime -> response back through the handler -> the
// originating Result settles.
package taskpool
