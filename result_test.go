package taskpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResultResolveSettlesOnce(t *testing.T) {
	r := newResult(1, nil)
	r.resolve(42)
	r.resolve(99) // no-op, already settled

	require.Equal(t, Resolved, r.State())
	require.Equal(t, 42, r.Value())
	require.Nil(t, r.Err())
}

func TestResultRejectSettlesOnce(t *testing.T) {
	r := newResult(1, nil)
	boom := errors.New("boom")
	r.reject(boom)
	r.reject(errors.New("ignored"))

	require.Equal(t, Rejected, r.State())
	require.Equal(t, boom, r.Err())
}

func TestResultCancelInvokesCancelFuncOnce(t *testing.T) {
	calls := 0
	r := newResult(1, func(cause error) {
		calls++
		require.IsType(t, &CancellationError{}, cause)
	})
	r.Cancel()
	r.Cancel()
	require.Equal(t, 1, calls)
}

func TestResultCancelAfterSettleIsNoop(t *testing.T) {
	calls := 0
	r := newResult(1, func(error) { calls++ })
	r.resolve("done")
	r.Cancel()
	require.Equal(t, 0, calls)
}

func TestResultWaitBlocksUntilSettle(t *testing.T) {
	r := newResult(1, nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.resolve("value")
	}()

	value, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "value", value)
}

func TestResultWaitRespectsContextCancellation(t *testing.T) {
	r := newResult(1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResultOnSettleFiresImmediatelyIfAlreadySettled(t *testing.T) {
	r := newResult(1, nil)
	r.resolve("v")

	called := false
	r.OnSettle(func(value any, err error) {
		called = true
		require.Equal(t, "v", value)
	})
	require.True(t, called)
}

func TestResultTimeoutArmedBeforeDispatchStartsOnArm(t *testing.T) {
	cancelled := make(chan struct{})
	r := newResult(1, func(error) { close(cancelled) })
	r.Timeout(20 * time.Millisecond)

	select {
	case <-cancelled:
		t.Fatal("timer fired before dispatch")
	case <-time.After(30 * time.Millisecond):
	}

	r.armTimeout()

	select {
	case <-cancelled:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timer never fired after arming")
	}
}

func TestResultTimeoutAfterDispatchStartsImmediately(t *testing.T) {
	cancelled := make(chan struct{})
	r := newResult(1, func(error) { close(cancelled) })
	r.armTimeout()
	r.Timeout(20 * time.Millisecond)

	select {
	case <-cancelled:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer never fired")
	}
}

func TestResultThenTransformsValue(t *testing.T) {
	r := newResult(1, nil)
	child := r.Then(func(v any) (any, error) {
		return v.(int) * 2, nil
	}, nil)

	r.resolve(21)
	require.Equal(t, Resolved, child.State())
	require.Equal(t, 42, child.Value())
}

func TestResultThenPropagatesErrorWithoutHandler(t *testing.T) {
	r := newResult(1, nil)
	child := r.Then(nil, nil)
	boom := errors.New("boom")
	r.reject(boom)
	require.Equal(t, Rejected, child.State())
	require.Equal(t, boom, child.Err())
}
