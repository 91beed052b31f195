package taskpool

import (
	"fmt"

	"github.com/taskpool/taskpool/transport"
)

// CancellationError settles a Result whose task was cancelled by the
// caller before it completed.
type CancellationError struct {
	// RequestID is the task that was cancelled.
	RequestID uint64
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("taskpool: task %d cancelled", e.RequestID)
}

// TimeoutError settles a Result whose timeout fired, or reports a
// termination budget that was exceeded.
type TimeoutError struct {
	RequestID uint64
	Budget    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("taskpool: task %d timed out after %s", e.RequestID, e.Budget)
}

// TerminateError settles every task outstanding on a worker that exited
// unexpectedly. It carries transport diagnostics: transport kind, exit
// code, signal, the worker command and its spawn arguments (process
// transport only), and any captured stderr tail.
type TerminateError struct {
	RequestID  uint64
	Transport  string
	ExitCode   int
	Signal     string
	Command    string
	Args       []string
	StderrTail []byte
	Cause      error
}

func (e *TerminateError) Error() string {
	msg := fmt.Sprintf("taskpool: worker (%s) exited unexpectedly, code=%d", e.Transport, e.ExitCode)
	if e.Signal != "" {
		msg += ", signal=" + e.Signal
	}
	if e.Command != "" {
		msg += ", command=" + e.Command
	}
	return msg
}

func (e *TerminateError) Unwrap() error { return e.Cause }

// PoolTerminated rejects submissions made during or after shutdown, and
// every task still queued when shutdown began.
type PoolTerminated struct{}

func (e *PoolTerminated) Error() string { return "taskpool: pool is terminated or terminating" }

// Is lets errors.Is(err, &PoolTerminated{}) match any instance: the
// type carries no fields that distinguish one occurrence from another.
func (e *PoolTerminated) Is(target error) bool {
	_, ok := target.(*PoolTerminated)
	return ok
}

// QueueFull rejects a submission when the configured max_queue_size is
// exceeded.
type QueueFull struct {
	MaxQueueSize int
}

func (e *QueueFull) Error() string {
	return fmt.Sprintf("taskpool: queue full (max %d)", e.MaxQueueSize)
}

// Is lets errors.Is(err, &QueueFull{}) match any instance regardless of
// MaxQueueSize, so callers can test the category without knowing the
// configured limit.
func (e *QueueFull) Is(target error) bool {
	_, ok := target.(*QueueFull)
	return ok
}

// ApplicationError is reconstructed from a worker's serialised error:
// it preserves Kind, Name, Message, Stack, and any extra own-properties
// the worker attached.
type ApplicationError struct {
	Kind    string
	Name    string
	Message string
	Stack   string
	Extras  map[string]any
}

func (e *ApplicationError) Error() string {
	if e.Name != "" {
		return e.Name + ": " + e.Message
	}
	return e.Message
}

// Is lets errors.Is(err, &ApplicationError{}) match any instance, so
// callers can test "did the task's own method fail" without comparing
// Kind/Name/Message/Stack/Extras.
func (e *ApplicationError) Is(target error) bool {
	_, ok := target.(*ApplicationError)
	return ok
}

// ValidationError reports construction-time misconfiguration of a Pool
// or a queue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("taskpool: invalid %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, &ValidationError{}) match any instance
// regardless of Field/Message, so callers can test the category
// without knowing which option was misconfigured.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// errorFromTransportExit builds a TerminateError from a transport.ExitInfo,
// the shared conversion used by handler.go's crash-handling path.
func errorFromTransportExit(requestID uint64, kind string, info transport.ExitInfo, stderrTail []byte) *TerminateError {
	return &TerminateError{
		RequestID:  requestID,
		Transport:  kind,
		ExitCode:   info.Code,
		Signal:     info.Signal,
		Command:    info.Command,
		Args:       info.Args,
		StderrTail: stderrTail,
		Cause:      info.Err,
	}
}

// Is lets errors.Is(err, &CancellationError{}) match any cancellation,
// regardless of RequestID, so callers can test the category without
// knowing the specific task.
func (e *CancellationError) Is(target error) bool {
	_, ok := target.(*CancellationError)
	return ok
}

func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

func (e *TerminateError) Is(target error) bool {
	_, ok := target.(*TerminateError)
	return ok
}
