package queue

import "container/heap"

// Priority is a binary-heap Task Queue keyed by descending priority,
// with ties broken by insertion order. It wraps container/heap over an
// internal max-heap slice rather than hand-rolling heap maintenance.
type Priority struct {
	h       priorityHeap
	nextSeq uint64
}

var _ Queue = (*Priority)(nil)

// NewPriority creates an empty priority queue.
func NewPriority() *Priority {
	return &Priority{}
}

func (q *Priority) Push(task Task) error {
	task.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, task)
	return nil
}

func (q *Priority) Pop() (Task, bool) {
	if q.h.Len() == 0 {
		return Task{}, false
	}
	return heap.Pop(&q.h).(Task), true
}

func (q *Priority) Size() int { return q.h.Len() }

func (q *Priority) Contains(requestID uint64) bool {
	for _, t := range q.h {
		if t.RequestID == requestID {
			return true
		}
	}
	return false
}

func (q *Priority) Remove(requestID uint64) (Task, bool) {
	for i, t := range q.h {
		if t.RequestID != requestID {
			continue
		}
		removed := heap.Remove(&q.h, i).(Task)
		return removed, true
	}
	return Task{}, false
}

func (q *Priority) Clear() {
	q.h = nil
}

// CountByPriority tallies queued tasks by their priority, for
// Pool.Stats()'s "QueuedByPriority" operational detail.
func (q *Priority) CountByPriority() map[int32]int {
	counts := make(map[int32]int, len(q.h))
	for _, t := range q.h {
		counts[t.Priority]++
	}
	return counts
}

// priorityHeap implements container/heap.Interface over []Task, ordering
// by descending Priority and, within equal priority, ascending seq (so
// the earliest-inserted task of a given priority pops first — stable).
type priorityHeap []Task

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(Task))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
