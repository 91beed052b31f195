package taskpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskpool/taskpool/platform"
	"github.com/taskpool/taskpool/protocol"
	"github.com/taskpool/taskpool/transport"
	"github.com/taskpool/taskpool/workerruntime"
)

// handlerState is the Worker Handler state machine:
// creating -> waiting -> executing -> (cleaning) -> waiting|terminating
// -> terminated.
type handlerState int32

const (
	stateCreating handlerState = iota
	stateWaiting
	stateExecuting
	stateCleaning
	stateTerminating
	stateTerminated
)

func (s handlerState) String() string {
	switch s {
	case stateCreating:
		return "creating"
	case stateWaiting:
		return "waiting"
	case stateExecuting:
		return "executing"
	case stateCleaning:
		return "cleaning"
	case stateTerminating:
		return "terminating"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// task is the Pool's internal envelope for one submitted unit of work;
// it travels as a queue.Task's Payload so the queue package stays
// ignorant of it.
type task struct {
	requestID uint64
	method    string
	params    any
	inline    bool
	transfer  [][]byte
	onEvent   func(payload any)
	result    *Result

	// isMethods marks the reserved query the Pool's Proxy() facility
	// issues: the handler sends a protocol.MethodsRequest instead of an
	// ordinary protocol.TaskRequest for these.
	isMethods bool

	// cancelCause records why cleanup was initiated (Cancellation or
	// Timeout) so the Result settles with the right error once the
	// cleanup response arrives.
	cancelCause error
}

// workerHandler is the per-worker state machine and request/response
// correlation table.
type workerHandler struct {
	id      string
	pool    *Pool
	channel transport.Channel
	kind    string // transport kind, for TerminateError diagnostics

	mu            sync.Mutex
	state         handlerState
	processing    map[uint64]*task
	tracking      map[uint64]*task
	preReadyQueue []protocol.Message

	cleanupTimeout time.Duration

	completed atomic.Uint64
	failed    atomic.Uint64
}

// kindValue reports the transport.Kind of h's underlying channel, for
// WorkerMetadata lifecycle callbacks and Stats.
func (h *workerHandler) kindValue() platform.Kind {
	return h.channel.Kind()
}

func (h *workerHandler) completedCount() uint64 { return h.completed.Load() }
func (h *workerHandler) failedCount() uint64    { return h.failed.Load() }

func newWorkerHandler(pool *Pool, channel transport.Channel) *workerHandler {
	h := &workerHandler{
		id:             uuid.NewString(),
		pool:           pool,
		channel:        channel,
		kind:           channel.Kind().String(),
		state:          stateCreating,
		processing:     make(map[uint64]*task),
		tracking:       make(map[uint64]*task),
		cleanupTimeout: pool.opts.cleanupTimeout,
	}
	channel.OnMessage(h.routeMessage)
	channel.OnExit(h.handleExit)
	return h
}

// available reports whether this handler may accept a new task: it
// must be waiting, neither cleaning nor terminating.
func (h *workerHandler) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateWaiting
}

func (h *workerHandler) stateValue() handlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// load reports the number of tasks this handler currently owns, used by
// Pool.Stats to count active tasks.
func (h *workerHandler) load() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.processing) + len(h.tracking)
}

// exec dispatches t to this worker. The caller (Pool.dispatchNext) must
// have already verified the handler is available.
func (h *workerHandler) exec(t *task) error {
	h.mu.Lock()
	if h.state != stateWaiting {
		h.mu.Unlock()
		return fmt.Errorf("taskpool: handler %s not available (state=%s)", h.id, h.state)
	}
	h.state = stateExecuting
	h.processing[t.requestID] = t
	h.mu.Unlock()

	t.result.setCancelFunc(h.cancelDispatched(t))
	t.result.armTimeout()

	var req protocol.TaskRequest
	switch {
	case t.isMethods:
		req = protocol.MethodsRequest(t.requestID)
	case t.inline:
		args, _ := t.params.([]any)
		req = protocol.TaskRequest{
			ID:       t.requestID,
			Method:   t.method,
			Params:   workerruntime.InlineSource{Body: t.method, Args: args},
			Inline:   true,
			Transfer: t.transfer,
		}
	default:
		req = protocol.TaskRequest{ID: t.requestID, Method: t.method, Params: t.params, Transfer: t.transfer}
	}
	if err := h.send(protocol.Message{Request: &req}, t.transfer); err != nil {
		h.mu.Lock()
		delete(h.processing, t.requestID)
		h.state = stateWaiting
		h.mu.Unlock()
		t.result.reject(&ApplicationError{Kind: "TransportError", Name: "Error", Message: err.Error()})
		h.pool.dispatchNext()
		return err
	}
	return nil
}

// cancelDispatched returns the cancelFunc installed on t.result once it
// is dispatched: cancelling or timing out a dispatched task starts the
// cleanup protocol rather than settling immediately.
func (h *workerHandler) cancelDispatched(t *task) func(cause error) {
	return func(cause error) {
		h.mu.Lock()
		if _, ok := h.processing[t.requestID]; !ok {
			h.mu.Unlock()
			return // already moved to tracking, or settled
		}
		delete(h.processing, t.requestID)
		t.cancelCause = cause
		h.tracking[t.requestID] = t
		h.state = stateCleaning
		h.mu.Unlock()

		cleanupReq := protocol.CleanupRequest(t.requestID)
		if err := h.send(protocol.Message{Request: &cleanupReq}, nil); err != nil {
			h.forceKillOnCleanupFailure(t)
			return
		}

		time.AfterFunc(h.cleanupTimeout, func() {
			h.mu.Lock()
			_, stillTracking := h.tracking[t.requestID]
			h.mu.Unlock()
			if stillTracking {
				h.forceKillOnCleanupFailure(t)
			}
		})
	}
}

// send buffers msg in preReadyQueue while still creating, otherwise sends directly.
func (h *workerHandler) send(msg protocol.Message, transfer [][]byte) error {
	h.mu.Lock()
	if h.state == stateCreating {
		h.preReadyQueue = append(h.preReadyQueue, msg)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()
	return h.channel.Send(msg, transfer)
}

func (h *workerHandler) routeMessage(msg protocol.Message) {
	switch {
	case msg.Signal == protocol.SignalReady:
		h.handleReady()
	case msg.Response != nil && msg.Response.Method == protocol.CleanupSentinel:
		h.handleCleanupResponse(msg.Response)
	case msg.Response != nil && msg.Response.IsEvent:
		h.handleEvent(msg.Response)
	case msg.Response != nil:
		h.handleTaskResponse(msg.Response)
	case msg.Fragment != nil:
		h.handleFragment(msg.Fragment)
	}
}

// handleReady transitions creating -> waiting on receipt of the ready
// signal, flushing anything queued while the worker was still starting
// up, in order.
func (h *workerHandler) handleReady() {
	h.mu.Lock()
	if h.state != stateCreating {
		h.mu.Unlock()
		return
	}
	h.state = stateWaiting
	queued := h.preReadyQueue
	h.preReadyQueue = nil
	h.mu.Unlock()

	for _, m := range queued {
		_ = h.channel.Send(m, nil)
	}
	h.pool.dispatchNext()
}

// handleCleanupResponse implements the cleaning -> waiting and
// cleaning -> terminating transitions.
func (h *workerHandler) handleCleanupResponse(resp *protocol.TaskResponse) {
	h.mu.Lock()
	t, ok := h.tracking[resp.ID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.tracking, resp.ID)

	if resp.Error == nil {
		h.state = stateWaiting
		h.mu.Unlock()
		t.result.reject(t.cancelCause)
		h.pool.dispatchNext()
		return
	}

	h.mu.Unlock()
	h.forceKillOnCleanupFailure(t)
}

// forceKillOnCleanupFailure implements "cleaning -> terminating: cleanup
// response arrives with non-null error, or cleanup does not arrive
// within budget. The worker is killed and replaced."
func (h *workerHandler) forceKillOnCleanupFailure(t *task) {
	h.mu.Lock()
	delete(h.tracking, t.requestID)
	if h.state == stateTerminated || h.state == stateTerminating {
		h.mu.Unlock()
		t.result.reject(t.cancelCause)
		return
	}
	h.state = stateTerminating
	h.mu.Unlock()

	t.result.reject(t.cancelCause)
	_ = h.channel.Kill(true)
}

func (h *workerHandler) handleEvent(resp *protocol.TaskResponse) {
	h.mu.Lock()
	t, ok := h.processing[resp.ID]
	h.mu.Unlock()
	if !ok {
		// no task currently tracking this id: discard
		h.pool.log.Debug("taskpool: discarding event for a task that is not processing", map[string]any{"worker_id": h.id, "request_id": resp.ID})
		return
	}
	if t.onEvent == nil {
		return
	}
	t.onEvent(resp.Payload)
}

// handleTaskResponse implements "executing -> waiting: a matching
// success/failure response arrives."
func (h *workerHandler) handleTaskResponse(resp *protocol.TaskResponse) {
	h.mu.Lock()
	t, ok := h.processing[resp.ID]
	if !ok {
		h.mu.Unlock()
		return // settled via cancellation already, or spurious late response
	}
	delete(h.processing, t.requestID)
	if h.state == stateExecuting {
		h.state = stateWaiting
	}
	h.mu.Unlock()

	if resp.Error != nil {
		h.failed.Add(1)
		t.result.reject(&ApplicationError{
			Kind:    resp.Error.Kind,
			Name:    resp.Error.Name,
			Message: resp.Error.Message,
			Stack:   resp.Error.Stack,
			Extras:  resp.Error.Extras,
		})
	} else {
		h.completed.Add(1)
		t.result.resolve(resp.Result)
	}
	h.pool.dispatchNext()
}

// handleFragment delivers a captured stdout/stderr fragment to every
// currently active task's event sink.
func (h *workerHandler) handleFragment(frag *protocol.StreamFragment) {
	h.mu.Lock()
	sinks := make([]func(any), 0, len(h.processing))
	for _, t := range h.processing {
		if t.onEvent != nil {
			sinks = append(sinks, t.onEvent)
		}
	}
	h.mu.Unlock()

	for _, sink := range sinks {
		sink(map[string]any{"stream": frag.Stream, "data": frag.Data})
	}
}

// handleExit implements crash-handling: every outstanding task rejects
// with TerminateError, the handler moves straight to terminated, and
// the Pool removes it from the live set.
func (h *workerHandler) handleExit(info transport.ExitInfo) {
	h.mu.Lock()
	h.state = stateTerminated
	outstanding := make([]*task, 0, len(h.processing)+len(h.tracking))
	for _, t := range h.processing {
		outstanding = append(outstanding, t)
	}
	for _, t := range h.tracking {
		outstanding = append(outstanding, t)
	}
	h.processing = make(map[uint64]*task)
	h.tracking = make(map[uint64]*task)
	h.mu.Unlock()

	var stderrTail []byte
	if sp, ok := h.channel.(interface{ StderrTail() []byte }); ok {
		stderrTail = sp.StderrTail()
	}

	for _, t := range outstanding {
		t.result.reject(errorFromTransportExit(t.requestID, h.kind, info, stderrTail))
	}

	h.pool.handlerExited(h)
}

// terminateAndNotify is the graceful-termination helper: send the
// terminate signal, wait up to timeout for exit, then force-kill.
// Returns once exit has been observed or the budget expired.
func (h *workerHandler) terminateAndNotify(force bool, timeout time.Duration) error {
	h.mu.Lock()
	if h.state == stateTerminated {
		h.mu.Unlock()
		return nil
	}
	h.state = stateTerminating
	h.mu.Unlock()

	exited := make(chan struct{})
	h.pool.registerExitWaiter(h.id, exited)
	defer h.pool.unregisterExitWaiter(h.id)

	if force {
		if err := h.channel.Kill(true); err != nil {
			return err
		}
	} else {
		if err := h.channel.Kill(false); err != nil {
			return err
		}
	}

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
		_ = h.channel.Kill(true)
		select {
		case <-exited:
			return nil
		case <-time.After(timeout):
			return &TimeoutError{Budget: timeout.String()}
		}
	}
}
