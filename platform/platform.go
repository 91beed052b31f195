// Package platform is a narrow probe: it reports CPU count and which
// Transport variants the host supports. The core (package transport,
// package taskpool) only ever calls through this package; nothing else
// in the module inspects runtime.GOOS/NumCPU directly.
package platform

import "runtime"

// Kind identifies a Transport Adapter variant.
type Kind int

const (
	// Thread runs the worker on its own goroutine in the same process.
	Thread Kind = iota
	// Process spawns the worker as a separate OS process.
	Process
	// Web is the browser-style worker variant, out of scope for this
	// systems-level core; Supports always reports false for it here.
	Web
)

func (k Kind) String() string {
	switch k {
	case Thread:
		return "thread"
	case Process:
		return "process"
	case Web:
		return "web"
	default:
		return "unknown"
	}
}

// NumCPU reports the number of logical CPUs available to the process,
// used by the Pool to default max_workers to max(1, cpus-1).
func NumCPU() int {
	return runtime.NumCPU()
}

// Supports reports whether the host can run the given Transport variant.
// Thread and Process are supported on every target Go itself supports;
// Web has no systems-level implementation in this core.
func Supports(k Kind) bool {
	switch k {
	case Thread, Process:
		return true
	default:
		return false
	}
}

// Best returns the best Transport variant for the host, for callers
// choosing an adapter themselves. Process is preferred over Thread
// when both are available: it gives true worker-crash isolation, with
// the in-process thread transport as the opt-in, lower-overhead
// choice.
func Best() Kind {
	if Supports(Process) {
		return Process
	}
	return Thread
}
