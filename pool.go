package taskpool

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskpool/taskpool/queue"
	"github.com/taskpool/taskpool/sharedqueue"
	"github.com/taskpool/taskpool/tplog"
	"github.com/taskpool/taskpool/transport"
	"github.com/taskpool/taskpool/workerruntime"
)

// Pool is the scheduler: admission, queue selection, worker
// creation/selection, and graceful/forced shutdown all act as critical
// sections over one mutex, preserving a single logical thread of
// control.
type Pool struct {
	id  string
	log tplog.Logger

	opts *poolOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	q               queue.Queue
	workers         []*workerHandler
	terminating     bool
	terminated      bool
	terminateResult *Result
	exitWaiters     map[string]chan struct{}

	nextRequestID uint64 // atomic
}

// New constructs a Pool, validating opts and eagerly creating
// min_workers.
func New(opts ...Option) (*Pool, error) {
	o, err := resolvePoolOptions(opts)
	if err != nil {
		return nil, err
	}

	q, err := buildQueue(o)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		id:          uuid.NewString(),
		log:         o.logger,
		opts:        o,
		ctx:         ctx,
		cancel:      cancel,
		q:           q,
		exitWaiters: make(map[string]chan struct{}),
	}

	if o.adapter == nil {
		if o.workerType == ProcessWorker {
			return nil, &ValidationError{Field: "worker_type", Message: "process worker_type requires WithAdapter(&transport.ProcessAdapter{...}); the pool has no way to guess which binary to exec"}
		}
		o.adapter = p.defaultAdapter()
	}
	if pa, ok := o.adapter.(*transport.ProcessAdapter); ok {
		pa.EmitStdStreams = o.emitStdStreams
	}

	for i := 0; i < o.minWorkers; i++ {
		if _, err := p.createWorker(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func buildQueue(o *poolOptions) (queue.Queue, error) {
	if o.customQueue != nil {
		return o.customQueue, nil
	}
	switch o.queueStrategy {
	case LIFO:
		return queue.NewLIFO(), nil
	case Priority:
		return queue.NewPriority(), nil
	case SharedMemory:
		if !sharedqueue.Available() {
			return queue.NewFIFO(), nil // deterministic fallback: no shared_queue build tag
		}
		ring, err := sharedqueue.New(o.sharedQueueCapacity)
		if err != nil {
			return queue.NewFIFO(), nil
		}
		return ring, nil
	default:
		return queue.NewFIFO(), nil
	}
}

// defaultAdapter builds the thread-transport adapter wrapping either the
// configured workerruntime.Runtime or a freshly-built default one.
func (p *Pool) defaultAdapter() transport.Adapter {
	rt := p.opts.runtime
	if rt == nil {
		rt = workerruntime.New()
	}
	return &transport.ThreadAdapter{Worker: rt.Serve}
}

// TaskOptions configures one submitted task.
type TaskOptions struct {
	Priority int32
	OnEvent  func(payload any)
	Transfer [][]byte
}

// Submit dispatches method against a registered worker method", registered-name
// path).
func (p *Pool) Submit(method string, params any, to TaskOptions) (*Result, error) {
	return p.submit(method, params, false, to)
}

// SubmitInline dispatches an inline function body against the default
// worker runtime's scripting capability). Not
// every worker runtime supports this; an unsupporting one rejects with
// ApplicationError.
func (p *Pool) SubmitInline(fnBody string, args []any, to TaskOptions) (*Result, error) {
	return p.submit(fnBody, args, true, to)
}

func (p *Pool) submit(method string, params any, inline bool, to TaskOptions) (*Result, error) {
	return p.enqueue(&task{
		method:   method,
		params:   params,
		inline:   inline,
		transfer: to.Transfer,
		onEvent:  to.OnEvent,
	}, to.Priority)
}

// submitMethods enqueues the reserved Proxy() method-enumeration query.
func (p *Pool) submitMethods() (*Result, error) {
	return p.enqueue(&task{isMethods: true}, 0)
}

func (p *Pool) enqueue(t *task, priority int32) (*Result, error) {
	p.mu.Lock()
	if p.terminating {
		p.mu.Unlock()
		return nil, &PoolTerminated{}
	}
	if p.opts.maxQueueSize > 0 && p.q.Size() >= p.opts.maxQueueSize {
		p.mu.Unlock()
		return nil, &QueueFull{MaxQueueSize: p.opts.maxQueueSize}
	}

	requestID := atomic.AddUint64(&p.nextRequestID, 1)
	t.requestID = requestID
	t.result = newResult(requestID, p.queueCancelFunc(t))

	if err := p.q.Push(queue.Task{RequestID: requestID, Priority: priority, Payload: t}); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	p.dispatchNext()
	return t.result, nil
}

// queueCancelFunc returns the cancellation hook installed on a task's
// Result while it is still queued: synchronous removal and rejection.
// Once dispatched, the Worker Handler swaps this out for its
// cleanup-protocol hook.
func (p *Pool) queueCancelFunc(t *task) func(cause error) {
	return func(cause error) {
		p.mu.Lock()
		_, ok := p.q.Remove(t.requestID)
		p.mu.Unlock()
		if ok {
			t.result.reject(cause)
		}
		// Not found means it was already dispatched; the handler's own
		// cancellation hook (installed via setCancelFunc) owns this task
		// now, and that closure is what actually ran, not this one,
		// because Result guards cancelFunc behind a single mutex-swapped
		// pointer.
	}
}

// dispatchNext drains the queue: while it is non-empty and a worker is
// available (existing idle, or room to create one), assign tasks until
// neither holds.
func (p *Pool) dispatchNext() {
	for {
		p.mu.Lock()
		if p.terminating || p.q.Size() == 0 {
			p.mu.Unlock()
			return
		}

		h := p.pickIdleWorkerLocked()
		if h == nil {
			if len(p.workers) >= p.opts.maxWorkers {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			if _, err := p.createWorker(); err != nil {
				p.log.Error("taskpool: failed to create worker", err, map[string]any{"pool_id": p.id})
				return
			}
			// A freshly created worker starts in "creating"; it becomes
			// available only once its ready signal arrives, at which
			// point handleReady calls dispatchNext again. Nothing more
			// to do on this pass.
			return
		}

		qt, ok := p.q.Pop()
		p.mu.Unlock()
		if !ok {
			return
		}
		t := qt.Payload.(*task)
		if err := h.exec(t); err != nil {
			p.log.Error("taskpool: dispatch failed", err, map[string]any{"pool_id": p.id, "worker_id": h.id})
		}
	}
}

// pickIdleWorkerLocked implements the "first-available" selection
// policy. p.mu must be held.
func (p *Pool) pickIdleWorkerLocked() *workerHandler {
	for _, h := range p.workers {
		if h.available() {
			return h
		}
	}
	return nil
}

// createWorker opens a new Transport Adapter channel, wires a Worker
// Handler to it, and adds it to the pool's worker set.
func (p *Pool) createWorker() (*workerHandler, error) {
	channel, err := p.opts.adapter.Open(p.ctx)
	if err != nil {
		return nil, err
	}

	h := newWorkerHandler(p, channel)

	p.mu.Lock()
	p.workers = append(p.workers, h)
	p.mu.Unlock()

	if p.opts.onCreateWorker != nil {
		p.opts.onCreateWorker(WorkerMetadata{ID: h.id, Transport: h.channel.Kind()})
	}

	return h, nil
}

// handlerExited removes h from the live worker set once its channel has
// exited, then
// re-runs dispatchNext since either a replacement slot opened or a
// pending terminate may now be able to progress.
func (p *Pool) handlerExited(h *workerHandler) {
	p.mu.Lock()
	for i, w := range p.workers {
		if w == h {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if p.opts.onTerminateWorker != nil {
		p.opts.onTerminateWorker(WorkerMetadata{ID: h.id, Transport: h.kindValue()})
	}

	p.mu.Lock()
	waiter, ok := p.exitWaiters[h.id]
	p.mu.Unlock()
	if ok {
		select {
		case <-waiter:
		default:
			close(waiter)
		}
	}

	p.dispatchNext()
	p.maybeFinishTermination()
}

func (p *Pool) registerExitWaiter(id string, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitWaiters[id] = ch
}

func (p *Pool) unregisterExitWaiter(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.exitWaiters, id)
}

// Terminate begins graceful (force=false) or forced (force=true)
// shutdown, memoizing the in-flight Result so a second call is a no-op
// that returns the same handle. A timeout <= 0 uses the per-worker
// budget set by WithWorkerTerminateTimeout.
func (p *Pool) Terminate(force bool, timeout time.Duration) *Result {
	if timeout <= 0 {
		timeout = p.opts.workerTerminateBudget
	}
	p.mu.Lock()
	if p.terminateResult != nil {
		r := p.terminateResult
		p.mu.Unlock()
		return r
	}
	p.terminating = true
	result := newResult(0, nil)
	p.terminateResult = result

	drained := make([]*task, 0, p.q.Size())
	for {
		qt, ok := p.q.Pop()
		if !ok {
			break
		}
		drained = append(drained, qt.Payload.(*task))
	}
	workers := append([]*workerHandler(nil), p.workers...)
	p.mu.Unlock()

	for _, t := range drained {
		t.result.reject(&PoolTerminated{})
	}

	if len(workers) == 0 {
		p.finishTermination(result)
		return result
	}

	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, h := range workers {
		h := h
		go func() {
			defer wg.Done()
			_ = h.terminateAndNotify(force, timeout)
		}()
	}

	go func() {
		wg.Wait()
		p.finishTermination(result)
	}()

	return result
}

func (p *Pool) finishTermination(result *Result) {
	p.mu.Lock()
	already := p.terminated
	p.terminated = true
	p.mu.Unlock()
	if !already {
		p.cancel()
		result.resolve(nil)
	}
}

// maybeFinishTermination lets a termination in progress complete as
// soon as the last worker's exit is observed through the ordinary
// handlerExited path, rather than only through Terminate's own
// termination goroutines.
func (p *Pool) maybeFinishTermination() {
	p.mu.Lock()
	if !p.terminating || p.terminated || p.terminateResult == nil {
		p.mu.Unlock()
		return
	}
	empty := len(p.workers) == 0
	result := p.terminateResult
	p.mu.Unlock()
	if empty {
		p.finishTermination(result)
	}
}

// Stats reports pool occupancy.
type Stats struct {
	TotalWorkers     int
	BusyWorkers      int
	IdleWorkers      int
	PendingTasks     int
	ActiveTasks      int
	CompletedTasks   uint64
	FailedTasks      uint64
	QueuedByPriority map[int32]int
	WorkerStats      []WorkerStat
}

// WorkerStat is one worker's lifetime counters, exposed via Stats for
// per-worker utilization history.
type WorkerStat struct {
	ID             string
	State          string
	TasksCompleted uint64
	TasksFailed    uint64
}

// Stats reports pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		TotalWorkers: len(p.workers),
		PendingTasks: p.q.Size(),
	}
	for _, h := range p.workers {
		if h.available() {
			s.IdleWorkers++
		} else {
			s.BusyWorkers++
		}
		s.ActiveTasks += h.load()
		completed, failed := h.completedCount(), h.failedCount()
		s.CompletedTasks += completed
		s.FailedTasks += failed
		s.WorkerStats = append(s.WorkerStats, WorkerStat{
			ID:             h.id,
			State:          h.stateValue().String(),
			TasksCompleted: completed,
			TasksFailed:    failed,
		})
	}

	if pq, ok := p.q.(*queue.Priority); ok {
		s.QueuedByPriority = pq.CountByPriority()
	}

	return s
}

// Proxy is a thin object whose call surface is the worker's registered
// method list, obtained via the built-in methods request against any
// worker.
type Proxy struct {
	pool    *Pool
	methods []string
}

// Methods returns the registered method names this Proxy learned about.
func (px *Proxy) Methods() []string {
	out := make([]string, len(px.methods))
	copy(out, px.methods)
	return out
}

// Call submits method through the pool exactly as Pool.Submit would,
// after verifying it appeared in the discovered method list.
func (px *Proxy) Call(method string, params any, to TaskOptions) (*Result, error) {
	found := false
	for _, m := range px.methods {
		if m == method {
			found = true
			break
		}
	}
	if !found {
		return nil, &ValidationError{Field: "method", Message: "not found on worker: " + method}
	}
	return px.pool.Submit(method, params, to)
}

// Proxy obtains the worker's registered method list via one
// MethodsSentinel round trip.
func (p *Pool) Proxy(ctx context.Context) (*Proxy, error) {
	r, err := p.submitMethods()
	if err != nil {
		return nil, err
	}
	value, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	names := methodNamesFrom(value)
	sort.Strings(names)
	return &Proxy{pool: p, methods: names}, nil
}

// methodNamesFrom converts the worker's MethodsSentinel result payload
// into a []string, tolerating both a native []string (thread transport,
// no serialization boundary) and a []any (JSON-decoded process
// transport).
func methodNamesFrom(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
