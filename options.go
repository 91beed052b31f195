package taskpool

import (
	"time"

	"github.com/taskpool/taskpool/platform"
	"github.com/taskpool/taskpool/queue"
	"github.com/taskpool/taskpool/tplog"
	"github.com/taskpool/taskpool/transport"
	"github.com/taskpool/taskpool/workerruntime"
)

// QueueStrategy selects a Task Queue family member.
type QueueStrategy int

const (
	// FIFO is the default: insertion order.
	FIFO QueueStrategy = iota
	// LIFO serves the most recently queued task first.
	LIFO
	// Priority serves the highest-priority task first, tie-breaking FIFO.
	Priority
	// SharedMemory uses the sharedqueue bridge, falling back to FIFO when
	// the build lacks the shared_queue tag.
	SharedMemory
)

// WorkerType selects a Transport Adapter variant.
type WorkerType int

const (
	// Auto uses the adapter given to WithAdapter or, without one, the
	// in-process thread transport; platform.Best is not consulted.
	Auto WorkerType = iota
	// ThreadWorker runs workers on goroutines in this process.
	ThreadWorker
	// ProcessWorker spawns workers as separate OS processes.
	ProcessWorker
)

// WorkerMetadata describes a worker instance to lifecycle hooks.
type WorkerMetadata struct {
	ID        string
	Transport platform.Kind
}

// poolOptions holds resolved construction-time configuration.
type poolOptions struct {
	maxWorkers            int
	minWorkers            int
	maxQueueSize          int // 0 = unbounded
	queueStrategy         QueueStrategy
	customQueue           queue.Queue
	sharedQueueCapacity   int
	workerType            WorkerType
	adapter               transport.Adapter
	workerTerminateBudget time.Duration
	cleanupTimeout        time.Duration
	emitStdStreams        bool
	onCreateWorker        func(WorkerMetadata)
	onTerminateWorker     func(WorkerMetadata)
	logger                tplog.Logger
	runtime               *workerruntime.Runtime
}

// Option configures a Pool at construction time.
type Option interface {
	apply(*poolOptions) error
}

type optionFunc func(*poolOptions) error

func (f optionFunc) apply(o *poolOptions) error { return f(o) }

// WithMaxWorkers sets the hard cap on concurrent workers. Must be >= 1.
func WithMaxWorkers(n int) Option {
	return optionFunc(func(o *poolOptions) error {
		if n < 1 {
			return &ValidationError{Field: "max_workers", Message: "must be >= 1"}
		}
		o.maxWorkers = n
		return nil
	})
}

// WithMinWorkers sets the number of workers created eagerly at
// construction. Must be <= max_workers once resolved.
func WithMinWorkers(n int) Option {
	return optionFunc(func(o *poolOptions) error {
		if n < 0 {
			return &ValidationError{Field: "min_workers", Message: "must be >= 0"}
		}
		o.minWorkers = n
		return nil
	})
}

// WithMinWorkersMax sets min_workers = max_workers, resolved once max_workers is
// known.
func WithMinWorkersMax() Option {
	return optionFunc(func(o *poolOptions) error {
		o.minWorkers = -1 // sentinel, resolved in New
		return nil
	})
}

// WithMaxQueueSize caps the number of pending tasks admitted. 0 (the default) is unbounded.
func WithMaxQueueSize(n int) Option {
	return optionFunc(func(o *poolOptions) error {
		if n < 0 {
			return &ValidationError{Field: "max_queue_size", Message: "must be >= 0"}
		}
		o.maxQueueSize = n
		return nil
	})
}

// WithQueueStrategy selects the Task Queue variant.
func WithQueueStrategy(s QueueStrategy) Option {
	return optionFunc(func(o *poolOptions) error {
		o.queueStrategy = s
		return nil
	})
}

// WithQueue supplies a caller-implemented queue.Queue as the accepted
// extension point over the built-in FIFO/LIFO/priority variants.
func WithQueue(q queue.Queue) Option {
	return optionFunc(func(o *poolOptions) error {
		if q == nil {
			return &ValidationError{Field: "queue", Message: "must not be nil"}
		}
		o.customQueue = q
		return nil
	})
}

// WithSharedQueueCapacity sets the shared-memory ring's fixed capacity,
// which must be a power of two. Only meaningful with
// WithQueueStrategy(SharedMemory).
func WithSharedQueueCapacity(n int) Option {
	return optionFunc(func(o *poolOptions) error {
		if n <= 0 || n&(n-1) != 0 {
			return &ValidationError{Field: "shared_queue_capacity", Message: "must be a positive power of two"}
		}
		o.sharedQueueCapacity = n
		return nil
	})
}

// WithWorkerType selects the Transport Adapter variant.
func WithWorkerType(t WorkerType) Option {
	return optionFunc(func(o *poolOptions) error {
		o.workerType = t
		return nil
	})
}

// WithAdapter overrides the transport.Adapter used to open every
// worker. Required when WorkerType is ProcessWorker (the Pool has no
// way to guess a worker_script/command line on its own); optional for
// ThreadWorker, where the default wraps the configured or default
// workerruntime.Runtime.
func WithAdapter(a transport.Adapter) Option {
	return optionFunc(func(o *poolOptions) error {
		if a == nil {
			return &ValidationError{Field: "adapter", Message: "must not be nil"}
		}
		o.adapter = a
		return nil
	})
}

// WithWorkerTerminateTimeout sets the graceful-shutdown budget per
// worker.
func WithWorkerTerminateTimeout(d time.Duration) Option {
	return optionFunc(func(o *poolOptions) error {
		if d <= 0 {
			return &ValidationError{Field: "worker_terminate_timeout_ms", Message: "must be > 0"}
		}
		o.workerTerminateBudget = d
		return nil
	})
}

// WithCleanupTimeout sets the budget a worker has to acknowledge a
// cleanup request before it is force-killed.
func WithCleanupTimeout(d time.Duration) Option {
	return optionFunc(func(o *poolOptions) error {
		if d <= 0 {
			return &ValidationError{Field: "cleanup_timeout_ms", Message: "must be > 0"}
		}
		o.cleanupTimeout = d
		return nil
	})
}

// WithEmitStdStreams delivers captured worker stderr as stream fragment
// events. Only meaningful for the process transport, whose stdout
// carries the framed message stream and is not emitted.
func WithEmitStdStreams(enabled bool) Option {
	return optionFunc(func(o *poolOptions) error {
		o.emitStdStreams = enabled
		return nil
	})
}

// WithOnCreateWorker registers a lifecycle hook invoked after a worker
// joins the pool.
func WithOnCreateWorker(cb func(WorkerMetadata)) Option {
	return optionFunc(func(o *poolOptions) error {
		o.onCreateWorker = cb
		return nil
	})
}

// WithOnTerminateWorker registers a lifecycle hook invoked after a
// worker leaves the pool, whether by graceful shutdown or crash.
func WithOnTerminateWorker(cb func(WorkerMetadata)) Option {
	return optionFunc(func(o *poolOptions) error {
		o.onTerminateWorker = cb
		return nil
	})
}

// WithLogger sets the Pool's structured logger (ambient stack; not a
// package global since a process may host more than one Pool).
func WithLogger(l tplog.Logger) Option {
	return optionFunc(func(o *poolOptions) error {
		if l == nil {
			return &ValidationError{Field: "logger", Message: "must not be nil"}
		}
		o.logger = l
		return nil
	})
}

// WithRuntime overrides the default workerruntime.Runtime used by the
// thread transport's in-process worker. Ignored when worker_type is
// process (a process worker supplies its own runtime via cmd/
// taskpool-worker).
func WithRuntime(rt *workerruntime.Runtime) Option {
	return optionFunc(func(o *poolOptions) error {
		if rt == nil {
			return &ValidationError{Field: "runtime", Message: "must not be nil"}
		}
		o.runtime = rt
		return nil
	})
}

// resolvePoolOptions applies defaults then every supplied Option,
// validating the combined result.
func resolvePoolOptions(opts []Option) (*poolOptions, error) {
	o := &poolOptions{
		maxWorkers:            maxInt(1, platform.NumCPU()-1),
		minWorkers:            0,
		queueStrategy:         FIFO,
		sharedQueueCapacity:   1024,
		workerType:            Auto,
		workerTerminateBudget: 5 * time.Second,
		cleanupTimeout:        time.Second,
		logger:                tplog.Noop,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}
	if o.minWorkers == -1 {
		o.minWorkers = o.maxWorkers
	}
	if o.minWorkers > o.maxWorkers {
		return nil, &ValidationError{Field: "min_workers", Message: "must be <= max_workers"}
	}
	return o, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
