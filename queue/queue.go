package queue

import "errors"

// ErrCapacityExceeded is returned by Push when a queue enforces a maximum
// size and is full. Only the shared-memory bridge variant (package
// sharedqueue) returns this today; the built-in FIFO/LIFO/priority queues
// are unbounded (admission control happens in the Pool, not in the
// queue itself).
var ErrCapacityExceeded = errors.New("queue: capacity exceeded")

// Task is the opaque envelope a Queue orders and stores. RequestID
// identifies the task uniquely for the lifetime of the pool;
// Priority orders tasks when the queue is priority-aware (higher settles
// earlier); Payload carries whatever the caller considers the task body —
// queue implementations never inspect it.
type Task struct {
	RequestID uint64
	Priority  int32
	Payload   any

	// seq is assigned by a Queue on Push and used purely to break ties
	// between tasks of equal Priority in insertion order. Queue
	// implementations that don't need it (FIFO, LIFO) ignore it.
	seq uint64
}

// Queue is the pluggable contract every Task Queue variant satisfies.
// A caller-supplied implementation is an accepted extension point.
type Queue interface {
	// Push enqueues task. O(1) amortised; must not reorder tasks of equal
	// key relative to insertion order.
	Push(task Task) error

	// Pop removes and returns the task with the highest scheduling
	// precedence. ok is false iff the queue was empty.
	Pop() (task Task, ok bool)

	// Size returns the number of queued tasks.
	Size() int

	// Contains reports whether a task with the given RequestID is
	// currently queued.
	Contains(requestID uint64) bool

	// Remove removes and returns the task with the given RequestID
	// without disturbing the relative order of the rest, if present.
	// Used by Result.Cancel to drop a not-yet-dispatched task.
	Remove(requestID uint64) (task Task, ok bool)

	// Clear empties the queue.
	Clear()
}
