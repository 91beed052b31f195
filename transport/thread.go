package transport

import (
	"context"
	"sync"

	"github.com/taskpool/taskpool/platform"
	"github.com/taskpool/taskpool/protocol"
)

// WorkerFunc runs a worker runtime loop in-process. It reads task/cleanup
// requests from in until in is closed or ctx is cancelled, and writes
// responses/events to out. The Serve method of a *workerruntime.Runtime
// has this signature and can be used as a WorkerFunc; transport itself has no dependency on workerruntime,
// keeping the two packages decoupled (the Pool wires them together).
type WorkerFunc func(ctx context.Context, in <-chan protocol.Message, out chan<- protocol.Message)

// ThreadChannelBufferSize is the default buffer depth of the channels
// backing a thread Channel. Sized to absorb a burst of events/task
// dispatches without blocking the sender on the receiver's scheduling
// latency.
const ThreadChannelBufferSize = 64

// ThreadAdapter opens workers as goroutines cooperating over Go channels.
// No real serialization boundary exists, so SupportsTransfer is true.
type ThreadAdapter struct {
	Worker WorkerFunc
}

var _ Adapter = (*ThreadAdapter)(nil)

func (a *ThreadAdapter) Kind() platform.Kind { return platform.Thread }

func (a *ThreadAdapter) Open(ctx context.Context) (Channel, error) {
	ctx, cancel := context.WithCancel(ctx)
	ch := &threadChannel{
		in:     make(chan protocol.Message, ThreadChannelBufferSize),
		out:    make(chan protocol.Message, ThreadChannelBufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(ch.done)
		a.Worker(ctx, ch.in, ch.out)
	}()

	go ch.pump()

	return ch, nil
}

// threadChannel is the Channel half of ThreadAdapter living on the main
// side. pump forwards worker output to the registered message callback
// and fires OnExit once the worker goroutine returns.
type threadChannel struct {
	in, out chan protocol.Message
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	onMessage func(protocol.Message)
	onExit    func(ExitInfo)
	closed    bool
}

var _ Channel = (*threadChannel)(nil)

func (c *threadChannel) pump() {
	for {
		select {
		case msg, ok := <-c.out:
			if !ok {
				return
			}
			c.mu.Lock()
			cb := c.onMessage
			c.mu.Unlock()
			if cb != nil {
				cb(msg)
			}
		case <-c.done:
			// Drain any buffered output before reporting exit.
			for {
				select {
				case msg, ok := <-c.out:
					if !ok {
						c.fireExit(ExitInfo{})
						return
					}
					c.mu.Lock()
					cb := c.onMessage
					c.mu.Unlock()
					if cb != nil {
						cb(msg)
					}
				default:
					c.fireExit(ExitInfo{})
					return
				}
			}
		}
	}
}

func (c *threadChannel) fireExit(info ExitInfo) {
	c.mu.Lock()
	cb := c.onExit
	c.mu.Unlock()
	if cb != nil {
		cb(info)
	}
}

func (c *threadChannel) Send(msg protocol.Message, transfer [][]byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	if msg.Request != nil {
		msg.Request.Transfer = transfer
	}

	select {
	case c.in <- msg:
		// Ownership handoff: the sender must treat transferred regions as
		// moved-from. Zero the caller's slice headers so any
		// further read panics loudly rather than silently aliasing.
		for i := range transfer {
			transfer[i] = nil
		}
		return nil
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *threadChannel) OnMessage(cb func(protocol.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = cb
}

func (c *threadChannel) OnExit(cb func(ExitInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExit = cb
}

func (c *threadChannel) Kill(force bool) error {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	if force {
		c.cancel()
		return nil
	}
	if wasClosed {
		return nil
	}

	select {
	case c.in <- protocol.Message{Signal: protocol.SignalTerminate}:
	case <-c.done:
	}
	return nil
}

func (c *threadChannel) SupportsTransfer() bool { return true }

func (c *threadChannel) Kind() platform.Kind { return platform.Thread }
