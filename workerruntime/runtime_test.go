package workerruntime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskpool/taskpool/protocol"
)

func startRuntime(t *testing.T, rt *Runtime) (in chan protocol.Message, out chan protocol.Message) {
	t.Helper()
	in = make(chan protocol.Message, 8)
	out = make(chan protocol.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rt.Serve(ctx, in, out)

	select {
	case msg := <-out:
		require.Equal(t, protocol.SignalReady, msg.Signal)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready signal")
	}
	return in, out
}

func TestRuntimeDispatchesRegisteredMethod(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Register("double", func(ctx context.Context, sink EventSink, params any) (any, error) {
		n := params.(float64)
		return n * 2, nil
	}))

	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 1, Method: "double", Params: float64(21)}}

	msg := <-out
	require.NotNil(t, msg.Response)
	require.Equal(t, uint64(1), msg.Response.ID)
	require.Nil(t, msg.Response.Error)
	require.Equal(t, float64(42), msg.Response.Result)
}

func TestRuntimeUnknownMethodReportsApplicationError(t *testing.T) {
	rt := New()
	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 2, Method: "missing"}}

	msg := <-out
	require.NotNil(t, msg.Response.Error)
	require.Equal(t, "ApplicationError", msg.Response.Error.Kind)
}

func TestRuntimeMethodsSentinelListsRegistrations(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Register("b", noop))
	require.NoError(t, rt.Register("a", noop))

	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 3, Method: protocol.MethodsSentinel}}

	msg := <-out
	require.Equal(t, []string{"a", "b"}, msg.Response.Result)
}

func TestRuntimeCleanupCancelsInFlightTask(t *testing.T) {
	rt := New(WithCleanupBudget(200 * time.Millisecond))
	started := make(chan struct{})
	require.NoError(t, rt.Register("block", func(ctx context.Context, sink EventSink, params any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 4, Method: "block"}}
	<-started

	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 4, Method: protocol.CleanupSentinel}}

	var taskResp, cleanupResp *protocol.TaskResponse
	for i := 0; i < 2; i++ {
		msg := <-out
		if msg.Response.Method == protocol.CleanupSentinel {
			cleanupResp = msg.Response
		} else {
			taskResp = msg.Response
		}
	}
	require.NotNil(t, taskResp)
	require.NotNil(t, taskResp.Error)
	require.NotNil(t, cleanupResp)
	require.Nil(t, cleanupResp.Error)
}

func TestRuntimeEventsCarryTaskID(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Register("progress", func(ctx context.Context, sink EventSink, params any) (any, error) {
		sink.Emit("halfway")
		return "done", nil
	}))

	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 5, Method: "progress"}}

	event := <-out
	require.True(t, event.Response.IsEvent)
	require.Equal(t, uint64(5), event.Response.ID)
	require.Equal(t, "halfway", event.Response.Payload)

	final := <-out
	require.False(t, final.Response.IsEvent)
	require.Equal(t, "done", final.Response.Result)
}

func TestRuntimeMethodPanicBecomesApplicationError(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Register("boom", func(ctx context.Context, sink EventSink, params any) (any, error) {
		panic("kaboom")
	}))

	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 6, Method: "boom"}}

	msg := <-out
	require.NotNil(t, msg.Response.Error)
	require.Contains(t, msg.Response.Error.Message, "kaboom")
}

func TestRuntimeApplicationErrorCarriesKindAndExtras(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Register("fail", func(ctx context.Context, sink EventSink, params any) (any, error) {
		return nil, NewApplicationError("ValidationError", "RangeError", map[string]any{"field": "n"}, errors.New("out of range"))
	}))

	in, out := startRuntime(t, rt)
	in <- protocol.Message{Request: &protocol.TaskRequest{ID: 7, Method: "fail"}}

	msg := <-out
	require.Equal(t, "ValidationError", msg.Response.Error.Kind)
	require.Equal(t, "RangeError", msg.Response.Error.Name)
	require.Equal(t, "n", msg.Response.Error.Extras["field"])
}

func TestRuntimeSignalTerminateStopsServe(t *testing.T) {
	rt := New()
	in, out := startRuntime(t, rt)
	in <- protocol.Message{Signal: protocol.SignalTerminate}

	select {
	case msg, ok := <-out:
		if ok {
			t.Fatalf("unexpected message after terminate: %+v", msg)
		}
	case <-time.After(time.Second):
	}
}

func noop(ctx context.Context, sink EventSink, params any) (any, error) { return nil, nil }
