//go:build shared_queue

package sharedqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskpool/taskpool/queue"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := New(3)
	require.ErrorIs(t, err, ErrCapacityNotPowerOfTwo)
}

func TestRingFIFOOrder(t *testing.T) {
	r, err := New(8)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, r.Push(queue.Task{RequestID: i}))
	}
	require.Equal(t, 5, r.Size())

	for i := uint64(1); i <= 5; i++ {
		task, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, task.RequestID)
	}
	_, ok := r.Pop()
	require.False(t, ok)
}

func TestRingCapacityExceeded(t *testing.T) {
	r, err := New(2)
	require.NoError(t, err)
	require.NoError(t, r.Push(queue.Task{RequestID: 1}))
	require.NoError(t, r.Push(queue.Task{RequestID: 2}))
	require.ErrorIs(t, r.Push(queue.Task{RequestID: 3}), queue.ErrCapacityExceeded)
}

func TestRingRemove(t *testing.T) {
	r, err := New(8)
	require.NoError(t, err)
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, r.Push(queue.Task{RequestID: i}))
	}

	task, ok := r.Remove(2)
	require.True(t, ok)
	require.Equal(t, uint64(2), task.RequestID)
	require.False(t, r.Contains(2))
	require.Equal(t, 3, r.Size())

	var order []uint64
	for {
		t, ok := r.Pop()
		if !ok {
			break
		}
		order = append(order, t.RequestID)
	}
	require.Equal(t, []uint64{1, 3, 4}, order)
}

func TestRingConcurrentProducerConsumers(t *testing.T) {
	r, err := New(1024)
	require.NoError(t, err)

	const n = 500
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, r.Push(queue.Task{RequestID: i}))
	}

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := r.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[task.RequestID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
}
