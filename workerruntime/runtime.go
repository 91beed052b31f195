package workerruntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskpool/taskpool/protocol"
)

// DefaultCleanupBudget is how long Runtime waits for a method to honour
// ctx cancellation before reporting the cleanup as failed.
const DefaultCleanupBudget = time.Second

// Runtime is the default Worker runtime library. It owns
// its method registry and the table of currently-executing tasks; there
// is no package-level mutable state, so a process may host more than one
// Runtime (e.g. under the thread transport, one per worker).
type Runtime struct {
	registry *registry
	inline   *inlineEngine // nil if inline execution is disabled

	cleanupBudget time.Duration

	mu      sync.Mutex
	running map[uint64]*runningTask
}

// runningTask tracks one in-flight task's cancellation function and
// completion signal, so a CleanupSentinel request can abort it.
type runningTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithCleanupBudget overrides DefaultCleanupBudget.
func WithCleanupBudget(d time.Duration) Option {
	return func(rt *Runtime) { rt.cleanupBudget = d }
}

// WithoutInline disables inline-function execution even though goja is
// linked in, e.g. for a deployment that wants to restrict workers to
// pre-registered methods only.
func WithoutInline() Option {
	return func(rt *Runtime) { rt.inline = nil }
}

// New creates a Runtime with no registered methods.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		registry:      newRegistry(),
		inline:        newInlineEngine(),
		cleanupBudget: DefaultCleanupBudget,
		running:       make(map[uint64]*runningTask),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Register adds a named method the pool can dispatch to by name.
func (rt *Runtime) Register(name string, fn Method) error {
	return rt.registry.Register(name, fn)
}

// SupportsInline reports whether this Runtime will execute inline
// function bodies.
func (rt *Runtime) SupportsInline() bool {
	return rt.inline != nil
}

// Serve runs the worker's main loop: send the ready signal, then process
// requests from in until it's closed or ctx is cancelled. Matches
// transport.WorkerFunc's signature structurally so it can be passed
// directly as a transport.ThreadAdapter.Worker; the process-backed
// cmd/taskpool-worker binary drives the same Serve loop over a codec
// instead of channels.
func (rt *Runtime) Serve(ctx context.Context, in <-chan protocol.Message, out chan<- protocol.Message) {
	out <- protocol.Message{Signal: protocol.SignalReady}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			if msg.Signal == protocol.SignalTerminate {
				return
			}
			if msg.Request == nil {
				continue
			}
			rt.handleRequest(ctx, msg.Request, out, &wg)
		}
	}
}

func (rt *Runtime) handleRequest(ctx context.Context, req *protocol.TaskRequest, out chan<- protocol.Message, wg *sync.WaitGroup) {
	switch req.Method {
	case protocol.CleanupSentinel:
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.handleCleanup(req.ID, out)
		}()
		return
	case protocol.MethodsSentinel:
		out <- protocol.Message{Response: &protocol.TaskResponse{
			ID:     req.ID,
			Method: protocol.MethodsSentinel,
			Result: rt.registry.Names(),
		}}
		return
	}

	fn, ok := rt.lookupRequest(req)
	if !ok {
		out <- protocol.Message{Response: &protocol.TaskResponse{
			ID:    req.ID,
			Error: applicationError(fmt.Errorf("workerruntime: method %q not found", req.Method)),
		}}
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	rt0 := &runningTask{cancel: cancel, done: make(chan struct{})}

	rt.mu.Lock()
	rt.running[req.ID] = rt0
	rt.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(rt0.done)
		defer func() {
			rt.mu.Lock()
			delete(rt.running, req.ID)
			rt.mu.Unlock()
		}()

		sink := &channelEventSink{id: req.ID, out: out}
		result, err := runMethodGuarded(taskCtx, sink, fn, req.Params)
		if err != nil {
			out <- protocol.Message{Response: &protocol.TaskResponse{ID: req.ID, Error: toErrorPayload(err)}}
			return
		}
		out <- protocol.Message{Response: &protocol.TaskResponse{ID: req.ID, Result: result}}
	}()
}

// lookupRequest resolves req to a callable Method, consulting the inline
// engine when req.Inline is set.
func (rt *Runtime) lookupRequest(req *protocol.TaskRequest) (Method, bool) {
	if req.Inline {
		if rt.inline == nil {
			return nil, false
		}
		source, ok := inlineSourceFrom(req.Params)
		if !ok {
			return nil, false
		}
		return rt.inline.compile(req.Method, source)
	}
	return rt.registry.Lookup(req.Method)
}

func (rt *Runtime) handleCleanup(id uint64, out chan<- protocol.Message) {
	rt.mu.Lock()
	task, ok := rt.running[id]
	rt.mu.Unlock()

	if !ok {
		// Nothing to abort; treat as successful no-op cleanup.
		out <- protocol.Message{Response: &protocol.TaskResponse{ID: id, Method: protocol.CleanupSentinel}}
		return
	}

	task.cancel()

	select {
	case <-task.done:
		out <- protocol.Message{Response: &protocol.TaskResponse{ID: id, Method: protocol.CleanupSentinel}}
	case <-time.After(rt.cleanupBudget):
		out <- protocol.Message{Response: &protocol.TaskResponse{
			ID:     id,
			Method: protocol.CleanupSentinel,
			Error:  applicationError(fmt.Errorf("workerruntime: task %d did not honour cancellation within %s", id, rt.cleanupBudget)),
		}}
	}
}

// runMethodGuarded recovers a panicking Method into an error, so errors
// arising from the task's own method are passed through as an
// ApplicationError even when the method panics rather than returning
// an error.
func runMethodGuarded(ctx context.Context, sink EventSink, fn Method, params any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerruntime: method panicked: %v", r)
		}
	}()
	return fn(ctx, sink, params)
}

// channelEventSink implements EventSink by writing Event messages
// tagged with the originating task's id.
type channelEventSink struct {
	id  uint64
	out chan<- protocol.Message
}

func (s *channelEventSink) Emit(payload any) {
	s.out <- protocol.Message{Response: &protocol.TaskResponse{ID: s.id, IsEvent: true, Payload: payload}}
}
