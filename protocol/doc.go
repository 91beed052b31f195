// Package protocol defines the on-wire message shapes exchanged between the
// Pool scheduler and a worker, and the two reserved method names
// (CleanupSentinel, MethodsSentinel) that share the normal request/response
// shape rather than requiring a distinct frame type.
//
// Every message kind described here is logical, not physical: the
// in-process thread transport passes Message values directly over a Go
// channel, bypassing Codec entirely, while the process transport
// serializes them with JSONCodec across a pipe. DirectCodec exists only
// to satisfy call sites that require a Codec value when no serialization
// boundary exists; it is never invoked by the thread transport.
package protocol
