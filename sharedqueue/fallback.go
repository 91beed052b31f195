//go:build !shared_queue

package sharedqueue

import (
	"errors"

	"github.com/taskpool/taskpool/queue"
)

// ErrUnavailable is returned by New when the binary wasn't built with
// the shared_queue tag.
var ErrUnavailable = errors.New("sharedqueue: not built with the shared_queue tag")

// Available reports false in a default build; the Pool falls back to
// queue.NewFIFO().
func Available() bool { return false }

// Ring is an unexported-capacity stub so callers can still reference
// the type name in generic code paths; New always fails.
type Ring struct{}

// New always returns ErrUnavailable in a build without the shared_queue
// tag.
func New(capacity int) (*Ring, error) {
	return nil, ErrUnavailable
}

func (*Ring) Push(queue.Task) error            { return ErrUnavailable }
func (*Ring) Pop() (queue.Task, bool)          { return queue.Task{}, false }
func (*Ring) Size() int                        { return 0 }
func (*Ring) Contains(uint64) bool             { return false }
func (*Ring) Remove(uint64) (queue.Task, bool) { return queue.Task{}, false }
func (*Ring) Clear()                           {}
