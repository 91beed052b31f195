//go:build shared_queue

package sharedqueue

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/taskpool/taskpool/queue"
)

// ErrCapacityNotPowerOfTwo is returned by New when capacity isn't a
// positive power of two.
var ErrCapacityNotPowerOfTwo = errors.New("sharedqueue: capacity must be a positive power of two")

// Available reports whether this build was compiled with the
// shared_queue tag, so the Pool can fall back to queue.NewFIFO()
// deterministically rather than probing for a
// feature at runtime.
func Available() bool { return true }

// slot holds one queued task plus the producer sequence it was written
// at. A nil *slot means "empty"; seq disambiguates a claimed-but-not-yet-
// visible slot from a genuinely empty one without needing a second
// sentinel value to resolve the seq==0 ambiguity.
type slot struct {
	task queue.Task
	seq  uint64
}

// Ring is a single-producer, multi-consumer fixed-capacity queue: the
// Pool Scheduler is the sole producer, but multiple Worker Handlers may
// race to Pop concurrently. Priority ordering is not supported; Ring is
// a capacity-bounded FIFO.
type Ring struct {
	mask uint64
	buf  []atomic.Pointer[slot]

	head atomic.Uint64 // next slot a consumer may claim
	tail atomic.Uint64 // next slot the producer will write

	removeMu sync.Mutex // guards Remove/Contains against concurrent Pop races on a specific id
}

// New builds a Ring of the given capacity, which must be a positive
// power of two so index masking replaces a division on every Push/Pop.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacityNotPowerOfTwo
	}
	return &Ring{
		mask: uint64(capacity - 1),
		buf:  make([]atomic.Pointer[slot], capacity),
	}, nil
}

// Push enqueues task, failing with queue.ErrCapacityExceeded once the
// ring is full.
func (r *Ring) Push(task queue.Task) error {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		return queue.ErrCapacityExceeded
	}
	idx := tail & r.mask
	r.buf[idx].Store(&slot{task: task, seq: tail})
	r.tail.Add(1)
	return nil
}

// Pop removes and returns the oldest queued task. Safe for concurrent
// callers.
func (r *Ring) Pop() (queue.Task, bool) {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head >= tail {
			return queue.Task{}, false
		}

		idx := head & r.mask
		s := r.buf[idx].Load()
		if s == nil || s.seq != head {
			runtime.Gosched()
			continue
		}

		if !r.head.CompareAndSwap(head, head+1) {
			continue // another consumer claimed this slot first
		}
		r.buf[idx].Store(nil)
		return s.task, true
	}
}

// Size returns the number of currently queued tasks. Best-effort under
// concurrent Push/Pop, same as MicrotaskRing.Length.
func (r *Ring) Size() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// Contains reports whether requestID is currently queued.
func (r *Ring) Contains(requestID uint64) bool {
	r.removeMu.Lock()
	defer r.removeMu.Unlock()
	head, tail := r.head.Load(), r.tail.Load()
	for i := head; i < tail; i++ {
		if s := r.buf[i&r.mask].Load(); s != nil && s.seq == i && s.task.RequestID == requestID {
			return true
		}
	}
	return false
}

// Remove drops the queued task with the given RequestID, if present. This
// walks the occupied range under removeMu, which only serialises against other
// Remove/Contains callers, not Push/Pop, so a concurrent Pop may still
// win the race for the same slot; callers must treat a false return as
// "already dispatched".
func (r *Ring) Remove(requestID uint64) (queue.Task, bool) {
	r.removeMu.Lock()
	defer r.removeMu.Unlock()

	head, tail := r.head.Load(), r.tail.Load()
	var found queue.Task
	var foundIdx uint64
	ok := false
	for i := head; i < tail; i++ {
		idx := i & r.mask
		if s := r.buf[idx].Load(); s != nil && s.seq == i && s.task.RequestID == requestID {
			found, foundIdx, ok = s.task, i, true
			break
		}
	}
	if !ok {
		return queue.Task{}, false
	}

	// Compact by shifting every slot after foundIdx back by one logical
	// position, preserving relative order; capacity is small enough in
	// practice (bridge sizing, not the default path) that this O(n) walk
	// is acceptable for what should be a rare operation.
	for i := foundIdx; i+1 < tail; i++ {
		next := r.buf[(i+1)&r.mask].Load()
		if next == nil {
			break
		}
		r.buf[i&r.mask].Store(&slot{task: next.task, seq: i})
	}
	r.buf[(tail-1)&r.mask].Store(nil)
	r.tail.Add(^uint64(0)) // tail--

	return found, true
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.removeMu.Lock()
	defer r.removeMu.Unlock()
	for i := range r.buf {
		r.buf[i].Store(nil)
	}
	r.head.Store(0)
	r.tail.Store(0)
}
