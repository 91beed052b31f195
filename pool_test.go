package taskpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskpool/taskpool/workerruntime"
)

func addRuntime() *workerruntime.Runtime {
	rt := workerruntime.New()
	_ = rt.Register("add", func(_ context.Context, _ workerruntime.EventSink, params any) (any, error) {
		args := params.([]any)
		return args[0].(int) + args[1].(int), nil
	})
	return rt
}

func TestPoolSimpleAddResolves(t *testing.T) {
	p, err := New(WithRuntime(addRuntime()))
	require.NoError(t, err)
	defer p.Terminate(true, time.Second).Wait(context.Background())

	r, err := p.Submit("add", []any{3, 4}, TaskOptions{})
	require.NoError(t, err)

	value, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, value)
}

func TestPoolInlineFunctionResolves(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Terminate(true, time.Second).Wait(context.Background())

	r, err := p.SubmitInline("function(a, b) { return a * b; }", []any{2, 5}, TaskOptions{})
	require.NoError(t, err)

	value, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, value)
}

func TestPoolQueueFullRejects(t *testing.T) {
	// occupy the only worker so the next submission actually queues
	blockStart := make(chan struct{})
	release := make(chan struct{})
	rt := workerruntime.New()
	_ = rt.Register("block", func(_ context.Context, _ workerruntime.EventSink, _ any) (any, error) {
		close(blockStart)
		<-release
		return nil, nil
	})
	p2, err := New(WithRuntime(rt), WithMaxWorkers(1), WithMaxQueueSize(1))
	require.NoError(t, err)
	defer func() {
		close(release)
		p2.Terminate(true, time.Second).Wait(context.Background())
	}()

	_, err = p2.Submit("block", nil, TaskOptions{})
	require.NoError(t, err)
	<-blockStart

	_, err = p2.Submit("block", nil, TaskOptions{})
	require.NoError(t, err) // fills the one queue slot

	_, err = p2.Submit("block", nil, TaskOptions{})
	require.Error(t, err)
	require.IsType(t, &QueueFull{}, err)
}

func TestPoolPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	release := make(chan struct{})
	blockStart := make(chan struct{}, 1)

	rt := workerruntime.New()
	_ = rt.Register("gate", func(_ context.Context, _ workerruntime.EventSink, _ any) (any, error) {
		blockStart <- struct{}{}
		<-release
		return nil, nil
	})
	_ = rt.Register("mark", func(_ context.Context, _ workerruntime.EventSink, params any) (any, error) {
		mu.Lock()
		order = append(order, params.(string))
		mu.Unlock()
		return nil, nil
	})

	p, err := New(WithRuntime(rt), WithMaxWorkers(1), WithQueueStrategy(Priority))
	require.NoError(t, err)
	defer p.Terminate(true, time.Second).Wait(context.Background())

	_, err = p.Submit("gate", nil, TaskOptions{})
	require.NoError(t, err)
	<-blockStart

	rA, err := p.Submit("mark", "A", TaskOptions{Priority: 0})
	require.NoError(t, err)
	rB, err := p.Submit("mark", "B", TaskOptions{Priority: 10})
	require.NoError(t, err)
	rC, err := p.Submit("mark", "C", TaskOptions{Priority: 5})
	require.NoError(t, err)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = rA.Wait(ctx)
	require.NoError(t, err)
	_, err = rB.Wait(ctx)
	require.NoError(t, err)
	_, err = rC.Wait(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"B", "C", "A"}, order)
}

func TestPoolCancelQueuedTaskSettlesWithoutWorker(t *testing.T) {
	release := make(chan struct{})
	blockStart := make(chan struct{}, 1)

	rt := workerruntime.New()
	_ = rt.Register("gate", func(_ context.Context, _ workerruntime.EventSink, _ any) (any, error) {
		blockStart <- struct{}{}
		<-release
		return nil, nil
	})

	p, err := New(WithRuntime(rt), WithMaxWorkers(1))
	require.NoError(t, err)
	defer func() {
		close(release)
		p.Terminate(true, time.Second).Wait(context.Background())
	}()

	_, err = p.Submit("gate", nil, TaskOptions{})
	require.NoError(t, err)
	<-blockStart

	queued, err := p.Submit("gate", nil, TaskOptions{})
	require.NoError(t, err)
	queued.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = queued.Wait(ctx)
	require.Error(t, err)
	require.IsType(t, &CancellationError{}, err)
}

func TestPoolTerminateGracefulWaitsForInFlight(t *testing.T) {
	rt := workerruntime.New()
	var started sync.WaitGroup
	started.Add(3)
	proceed := make(chan struct{})
	_ = rt.Register("slow", func(_ context.Context, _ workerruntime.EventSink, _ any) (any, error) {
		started.Done()
		<-proceed
		return "done", nil
	})

	p, err := New(WithRuntime(rt), WithMaxWorkers(3))
	require.NoError(t, err)

	results := make([]*Result, 3)
	for i := range results {
		r, err := p.Submit("slow", nil, TaskOptions{})
		require.NoError(t, err)
		results[i] = r
	}
	started.Wait()

	termDone := make(chan struct{})
	go func() {
		close(proceed)
		termResult := p.Terminate(false, 2*time.Second)
		_, _ = termResult.Wait(context.Background())
		close(termDone)
	}()

	select {
	case <-termDone:
	case <-time.After(5 * time.Second):
		t.Fatal("terminate never settled")
	}

	for _, r := range results {
		value, err := r.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, "done", value)
	}

	stats := p.Stats()
	require.Equal(t, 0, stats.TotalWorkers)
}

func TestPoolTerminateIsIdempotent(t *testing.T) {
	p, err := New(WithRuntime(addRuntime()))
	require.NoError(t, err)

	r1 := p.Terminate(true, time.Second)
	r2 := p.Terminate(true, time.Second)
	require.Same(t, r1, r2)
}

func TestPoolSubmitAfterTerminateRejects(t *testing.T) {
	p, err := New(WithRuntime(addRuntime()))
	require.NoError(t, err)
	p.Terminate(true, time.Second).Wait(context.Background())

	_, err = p.Submit("add", []any{1, 2}, TaskOptions{})
	require.Error(t, err)
	require.IsType(t, &PoolTerminated{}, err)
}

func TestPoolProxyListsRegisteredMethods(t *testing.T) {
	p, err := New(WithRuntime(addRuntime()))
	require.NoError(t, err)
	defer p.Terminate(true, time.Second).Wait(context.Background())

	proxy, err := p.Proxy(context.Background())
	require.NoError(t, err)
	require.Contains(t, proxy.Methods(), "add")

	r, err := proxy.Call("add", []any{10, 20}, TaskOptions{})
	require.NoError(t, err)
	value, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 30, value)

	_, err = proxy.Call("nonexistent", nil, TaskOptions{})
	require.Error(t, err)
}
