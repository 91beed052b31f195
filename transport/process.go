package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/taskpool/taskpool/platform"
	"github.com/taskpool/taskpool/protocol"
)

// stderrTailBytes bounds how much of a worker process's stderr is kept
// for crash diagnostics.
const stderrTailBytes = 4096

// ProcessAdapter opens workers as separate OS processes, framed with protocol.JSONCodec over
// stdin/stdout. Command must be configured to run a workerruntime-backed
// binary (see cmd/taskpool-worker).
type ProcessAdapter struct {
	// Command builds the *exec.Cmd to run for each worker. Called once
	// per Open.
	Command func(ctx context.Context) *exec.Cmd
	Codec   protocol.Codec

	// EmitStdStreams, when true, delivers captured worker stderr as
	// protocol.Message{Fragment: ...} events through the channel's
	// message callback, in addition to keeping the crash-diagnostic
	// tail. Worker stdout is not separately capturable: it already
	// carries the framed protocol.Message stream itself.
	EmitStdStreams bool
}

var _ Adapter = (*ProcessAdapter)(nil)

func (a *ProcessAdapter) Kind() platform.Kind { return platform.Process }

func (a *ProcessAdapter) Open(ctx context.Context) (Channel, error) {
	codec := a.Codec
	if codec == nil {
		codec = protocol.JSONCodec{}
	}

	cmd := a.Command(ctx)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start worker process: %w", err)
	}

	pc := &processChannel{
		cmd:            cmd,
		stdin:          stdin,
		codec:          codec,
		done:           make(chan struct{}),
		stderr:         newTailBuffer(stderrTailBytes),
		emitStdStreams: a.EmitStdStreams,
	}

	go pc.readStderr(stderr)
	go pc.readLoop(stdout)
	go pc.wait()

	return pc, nil
}

type processChannel struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	codec protocol.Codec

	mu        sync.Mutex
	onMessage func(protocol.Message)
	onExit    func(ExitInfo)
	exited    bool
	writeErr  error

	done           chan struct{}
	stderr         *tailBuffer
	emitStdStreams bool
}

var _ Channel = (*processChannel)(nil)

func (c *processChannel) readLoop(stdout io.Reader) {
	r := bufio.NewReader(stdout)
	for {
		msg, err := c.codec.Decode(r)
		if err != nil {
			return
		}
		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (c *processChannel) readStderr(stderr io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			c.stderr.Write(buf[:n])
			if c.emitStdStreams {
				c.emitFragment("stderr", buf[:n])
			}
		}
		if err != nil {
			return
		}
	}
}

// emitFragment delivers a captured stdout/stderr chunk through the
// message callback as a StreamFragment event, the same path ordinary
// TaskResponse messages take.
func (c *processChannel) emitFragment(stream string, p []byte) {
	data := make([]byte, len(p))
	copy(data, p)

	c.mu.Lock()
	cb := c.onMessage
	c.mu.Unlock()
	if cb == nil {
		return
	}
	cb(protocol.Message{Fragment: &protocol.StreamFragment{Stream: stream, Data: data}})
}

func (c *processChannel) wait() {
	err := c.cmd.Wait()
	close(c.done)

	info := ExitInfo{Command: c.cmd.Path, Args: append([]string(nil), c.cmd.Args...)}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			info.Code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				info.Signal = status.Signal().String()
			}
		} else {
			info.Err = err
		}
	}

	c.mu.Lock()
	c.exited = true
	cb := c.onExit
	c.mu.Unlock()
	if cb != nil {
		cb(info)
	}
}

func (c *processChannel) Send(msg protocol.Message, transfer [][]byte) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	if err := c.codec.Encode(c.stdin, msg); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	// The process transport always copies across the stdio boundary —
	// there is no real ownership handoff possible across a process, so
	// transfer is accepted but ignored (SupportsTransfer reports false).
	return nil
}

func (c *processChannel) OnMessage(cb func(protocol.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = cb
}

func (c *processChannel) OnExit(cb func(ExitInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExit = cb
}

func (c *processChannel) Kill(force bool) error {
	if force {
		return c.cmd.Process.Kill()
	}
	return c.codec.Encode(c.stdin, protocol.Message{Signal: protocol.SignalTerminate})
}

func (c *processChannel) SupportsTransfer() bool { return false }

func (c *processChannel) Kind() platform.Kind { return platform.Process }

// StderrTail returns the most recently captured bytes of the worker
// process's stderr, for crash diagnostics.
func (c *processChannel) StderrTail() []byte {
	return c.stderr.Bytes()
}

// tailBuffer keeps only the last N bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	cap int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{cap: capacity}
}

func (t *tailBuffer) Write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.cap {
		t.buf = t.buf[len(t.buf)-t.cap:]
	}
}

func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.buf))
	copy(out, t.buf)
	return out
}
