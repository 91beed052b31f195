// Package transport implements the Transport Adapter: a uniform,
// bidirectional message channel over whichever worker backing is in
// use. The core (package taskpool) never branches on which variant it
// holds — it only calls through the Channel interface.
//
// Two concrete variants are provided: Thread (a goroutine in the same
// process) and Process (a separate OS process, framed JSON over stdio).
// A third, browser-style variant is intentionally not implemented here,
// out of scope for this systems-level core, though the interface
// remains implementable by an external adapter.
package transport
