// Command taskpool-worker is the executable a transport.ProcessAdapter
// spawns for the process Transport Adapter variant. It
// frames protocol.Message values over stdin/stdout with
// protocol.JSONCodec and runs a workerruntime.Runtime against them,
// exactly the way the thread transport runs one over Go channels
// in-process.
package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskpool/taskpool/protocol"
	"github.com/taskpool/taskpool/workerruntime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	rt := buildRuntime()

	codec := protocol.JSONCodec{}
	in := make(chan protocol.Message, 64)
	out := make(chan protocol.Message, 64)

	go readStdin(codec, in)
	go writeStdout(codec, out)

	rt.Serve(ctx, in, out)
}

// buildRuntime registers the demo methods this worker binary exposes.
// A real deployment would build its own binary importing workerruntime
// and registering its own methods the same way.
func buildRuntime() *workerruntime.Runtime {
	rt := workerruntime.New()
	_ = rt.Register("echo", func(_ context.Context, _ workerruntime.EventSink, params any) (any, error) {
		return params, nil
	})
	_ = rt.Register("sleep", func(ctx context.Context, _ workerruntime.EventSink, params any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return "awake", nil
	})
	return rt
}

func readStdin(codec protocol.Codec, in chan<- protocol.Message) {
	defer close(in)
	r := bufio.NewReader(os.Stdin)
	for {
		msg, err := codec.Decode(r)
		if err != nil {
			return
		}
		in <- msg
	}
}

func writeStdout(codec protocol.Codec, out <-chan protocol.Message) {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for msg := range out {
		if err := codec.Encode(w, msg); err != nil {
			return
		}
		_ = w.Flush()
	}
}
