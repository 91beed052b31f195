package transport

import (
	"context"
	"errors"

	"github.com/taskpool/taskpool/platform"
	"github.com/taskpool/taskpool/protocol"
)

// ErrChannelClosed is returned by Send once a Channel has exited.
var ErrChannelClosed = errors.New("transport: channel closed")

// ExitInfo describes why a worker's channel closed: the exit code,
// signal (if killed by one), any transport-level error, and — for
// transports that spawn an external program — the command that was
// run.
type ExitInfo struct {
	Code   int
	Signal string
	// Err carries a transport-level failure (e.g. exec failed to start)
	// distinct from a clean or non-zero process exit.
	Err error
	// Command is the spawned binary's path, empty for transports with
	// no separate worker program (e.g. the thread transport).
	Command string
	// Args is the full argv, including argv[0], that Command was
	// invoked with.
	Args []string
}

// Channel is the bidirectional message channel between the Pool and one
// worker. Implementations are safe for concurrent use: Send may be
// called while the message callback is dispatching on another
// goroutine.
type Channel interface {
	// Send delivers msg to the worker. transfer lists binary regions
	// whose ownership moves to the worker; on a transport that supports
	// it (SupportsTransfer), the sender's slices are zeroed after Send
	// returns — transferable binary regions are an ownership handoff,
	// not a copy.
	Send(msg protocol.Message, transfer [][]byte) error

	// OnMessage registers the single message callback. Calling it again
	// replaces the previous callback.
	OnMessage(cb func(protocol.Message))

	// OnExit registers the exit callback, invoked exactly once.
	OnExit(cb func(ExitInfo))

	// Kill requests termination. force=true is immediate; force=false
	// sends the terminate signal first and lets the worker exit on its
	// own.
	Kill(force bool) error

	// SupportsTransfer reports whether this variant can hand over
	// ownership of binary regions without copying.
	SupportsTransfer() bool

	// Kind identifies which Transport variant this Channel came from.
	Kind() platform.Kind
}

// Adapter opens a worker and yields a Channel to it.
type Adapter interface {
	Open(ctx context.Context) (Channel, error)
	Kind() platform.Kind
}
