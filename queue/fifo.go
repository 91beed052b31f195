package queue

// fifoChunkSize is the number of tasks per node in the chunked linked
// list backing FIFO: large enough to amortise the allocation per task,
// small enough to keep a single chunk's backing array cache-resident.
const fifoChunkSize = 128

// fifoChunk is a fixed-size node in FIFO's chunked linked list. readPos
// and writePos are cursors into tasks, giving O(1) push/pop without
// shifting elements.
type fifoChunk struct {
	tasks    [fifoChunkSize]Task
	next     *fifoChunk
	readPos  int
	writePos int
}

// FIFO is an insertion-order Task Queue. Push/Pop are O(1)
// amortised; Contains and Remove are O(n) as the contract allows.
type FIFO struct {
	head, tail *fifoChunk
	length     int
	nextSeq    uint64
}

var _ Queue = (*FIFO)(nil)

// NewFIFO creates an empty FIFO queue.
func NewFIFO() *FIFO {
	return &FIFO{}
}

func (q *FIFO) Push(task Task) error {
	task.seq = q.nextSeq
	q.nextSeq++

	if q.tail == nil {
		q.tail = &fifoChunk{}
		q.head = q.tail
	} else if q.tail.writePos == fifoChunkSize {
		newTail := &fifoChunk{}
		q.tail.next = newTail
		q.tail = newTail
	}

	q.tail.tasks[q.tail.writePos] = task
	q.tail.writePos++
	q.length++
	return nil
}

func (q *FIFO) Pop() (Task, bool) {
	for q.head != nil && q.head.readPos >= q.head.writePos {
		if q.head == q.tail {
			q.head.readPos = 0
			q.head.writePos = 0
			return Task{}, false
		}
		q.head = q.head.next
	}
	if q.head == nil {
		return Task{}, false
	}

	task := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = Task{}
	q.head.readPos++
	q.length--
	return task, true
}

func (q *FIFO) Size() int { return q.length }

func (q *FIFO) Contains(requestID uint64) bool {
	for c := q.head; c != nil; c = c.next {
		for i := c.readPos; i < c.writePos; i++ {
			if c.tasks[i].RequestID == requestID {
				return true
			}
		}
	}
	return false
}

func (q *FIFO) Remove(requestID uint64) (Task, bool) {
	for c := q.head; c != nil; c = c.next {
		for i := c.readPos; i < c.writePos; i++ {
			if c.tasks[i].RequestID != requestID {
				continue
			}
			removed := c.tasks[i]
			// Shift the remainder of this chunk down by one to preserve
			// order, since order within and across chunks is load-bearing
			// for FIFO semantics.
			copy(c.tasks[i:c.writePos-1], c.tasks[i+1:c.writePos])
			c.writePos--
			c.tasks[c.writePos] = Task{}
			q.length--
			return removed, true
		}
	}
	return Task{}, false
}

func (q *FIFO) Clear() {
	q.head = nil
	q.tail = nil
	q.length = 0
}
