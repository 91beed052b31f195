package taskpool

import (
	"context"
	"sync"
	"time"
)

// ResultState is the lifecycle state of a Result.
type ResultState int

const (
	// Pending is the initial state; no final value or error is set yet.
	Pending ResultState = iota
	// Resolved means the task completed successfully.
	Resolved
	// Rejected means the task failed, was cancelled, or timed out.
	Rejected
)

func (s ResultState) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Result is the caller-visible handle for one submitted task: a
// promise-like settle-once cell with cancel/timeout support and both a
// blocking and a callback-based way to observe settlement. Settlement
// callbacks run synchronously on whichever goroutine settles the
// result, since there is no event loop here to schedule them onto.
type Result struct {
	requestID uint64

	mu          sync.Mutex
	state       ResultState
	value       any
	err         error
	subscribers []chan struct{}
	onSettle    []func(value any, err error)

	// cancelFunc triggers the pool's cancellation path (queue removal or
	// cleanup-protocol dispatch, depending on whether the task has been
	// dispatched yet). cause distinguishes an explicit Cancel() from a
	// fired Timeout() so the eventual settlement carries the right error
	// type. nil once already settled.
	cancelFunc func(cause error)

	// timeoutArmed/timeoutDuration record a timeout() call that arrived
	// before dispatch; armTimeout (called by the handler on dispatch)
	// starts the actual timer.
	timeoutArmed    bool
	timeoutDuration time.Duration
	timer           *time.Timer

	// dispatchedFlag is set once by armTimeout, the moment the task
	// leaves the queue and starts executing.
	dispatchedFlag bool
}

// newResult constructs a pending Result for requestID. cancelFunc is
// supplied by the Pool/handler and is called at most once, the first
// time Cancel (or a firing timeout) is observed.
func newResult(requestID uint64, cancelFunc func(cause error)) *Result {
	return &Result{requestID: requestID, cancelFunc: cancelFunc}
}

// RequestID identifies the underlying task.
func (r *Result) RequestID() uint64 { return r.requestID }

// State returns the current settlement state.
func (r *Result) State() ResultState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Value returns the resolved value, or nil if pending or rejected.
func (r *Result) Value() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Resolved {
		return r.value
	}
	return nil
}

// Err returns the rejection error, or nil if pending or resolved.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Rejected {
		return r.err
	}
	return nil
}

// resolve settles the result successfully. A no-op if already settled.
func (r *Result) resolve(value any) {
	r.settle(Resolved, value, nil)
}

// reject settles the result with err. A no-op if already settled.
func (r *Result) reject(err error) {
	r.settle(Rejected, nil, err)
}

func (r *Result) settle(state ResultState, value any, err error) {
	r.mu.Lock()
	if r.state != Pending {
		r.mu.Unlock()
		return
	}
	r.state = state
	r.value = value
	r.err = err
	r.cancelFunc = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	subs := r.subscribers
	r.subscribers = nil
	callbacks := r.onSettle
	r.onSettle = nil
	r.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	for _, cb := range callbacks {
		cb(value, err)
	}
}

// Cancel settles the Result with a CancellationError if it hasn't
// already settled. If the task is
// still queued, the Pool removes it synchronously; if it's executing,
// the cleanup protocol runs and Cancel's own effect on the Result is
// deferred until cleanup completes (cancelFunc encodes which case
// applies).
func (r *Result) Cancel() {
	r.mu.Lock()
	cancel := r.cancelFunc
	r.cancelFunc = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel(&CancellationError{RequestID: r.requestID})
	}
}

// Timeout arms a one-shot timer that cancels the task (settling with
// TimeoutError instead of CancellationError) after d, measured from
// dispatch time rather than from this call. Calling
// Timeout after the task has already been dispatched starts the timer
// immediately; calling it before dispatch just records the duration,
// and the handler starts the timer when the task transitions to
// executing via armTimeout.
func (r *Result) Timeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Pending {
		return
	}
	r.timeoutDuration = d
	if r.dispatched() {
		r.startTimerLocked(d)
	} else {
		r.timeoutArmed = true
	}
}

// setCancelFunc replaces the pool-supplied cancellation hook, used by
// the Worker Handler to swap the queued-removal hook for the
// cleanup-protocol hook at the moment a task is dispatched. A no-op once already settled.
func (r *Result) setCancelFunc(fn func(cause error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Pending {
		r.cancelFunc = fn
	}
}

// dispatched reports, under r.mu, whether armTimeout has already run.
// It reads an explicit flag rather than inferring dispatch from timer
// or timeoutArmed.
func (r *Result) dispatched() bool {
	return r.dispatchedFlag
}

// armTimeout is called by the Worker Handler exactly once, at the
// moment a task transitions from queued to executing. If Timeout was
// called earlier, the recorded duration starts now.
func (r *Result) armTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchedFlag = true
	if r.state != Pending {
		return
	}
	if r.timeoutArmed {
		r.timeoutArmed = false
		r.startTimerLocked(r.timeoutDuration)
	}
}

func (r *Result) startTimerLocked(d time.Duration) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		cancel := r.cancelFunc
		r.cancelFunc = nil
		r.mu.Unlock()
		if cancel != nil {
			cancel(&TimeoutError{RequestID: r.requestID, Budget: d.String()})
		}
	})
}

// ToChannel returns a channel closed when the Result settles. If the
// Result has already settled, the returned channel is already closed.
func (r *Result) ToChannel() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	if r.state != Pending {
		close(ch)
		return ch
	}
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// OnSettle registers cb to run once, synchronously from whichever
// goroutine causes settlement, the first time this Result settles. If
// already settled, cb runs immediately on the calling goroutine.
func (r *Result) OnSettle(cb func(value any, err error)) {
	r.mu.Lock()
	if r.state == Pending {
		r.onSettle = append(r.onSettle, cb)
		r.mu.Unlock()
		return
	}
	value, err, state := r.value, r.err, r.state
	r.mu.Unlock()
	if state != Pending {
		cb(value, err)
	}
}

// Wait blocks until the Result settles or ctx is cancelled, whichever
// happens first. This is Go-native sugar over ToChannel/State.
func (r *Result) Wait(ctx context.Context) (any, error) {
	ch := r.ToChannel()
	select {
	case <-ch:
		return r.Value(), r.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers on-settle callbacks and returns a new Result chained
// to this one's settlement, transformed by whichever callback runs.
// Either callback may be nil to pass the value/error through unchanged.
func (r *Result) Then(onOK func(value any) (any, error), onErr func(err error) (any, error)) *Result {
	child := newResult(r.requestID, nil)
	r.OnSettle(func(value any, err error) {
		switch {
		case err == nil && onOK != nil:
			v, e := onOK(value)
			if e != nil {
				child.reject(e)
			} else {
				child.resolve(v)
			}
		case err == nil:
			child.resolve(value)
		case onErr != nil:
			v, e := onErr(err)
			if e != nil {
				child.reject(e)
			} else {
				child.resolve(v)
			}
		default:
			child.reject(err)
		}
	})
	return child
}
