package workerruntime

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// InlineSource is the params shape the Pool sends for an inline
// TaskRequest: the function source travels as part of the call itself.
// Body is the text of a JS function expression; Args are passed
// positionally. Exported so the main-side handler can
// construct it directly for the thread transport's zero-copy channel
// path; a JSON-decoded process-transport request arrives instead as a
// map, which inlineSourceFrom also accepts.
type InlineSource struct {
	Body string `json:"body"`
	Args []any  `json:"args"`
}

// inlineSourceFrom normalises req.Params into an InlineSource,
// tolerating both the typed value (thread transport, no serialization
// boundary) and the map[string]any a JSON codec produces (process
// transport).
func inlineSourceFrom(params any) (InlineSource, bool) {
	switch v := params.(type) {
	case InlineSource:
		return v, true
	case map[string]any:
		src := InlineSource{}
		if body, ok := v["body"].(string); ok {
			src.Body = body
		} else {
			return InlineSource{}, false
		}
		if args, ok := v["args"].([]any); ok {
			src.Args = args
		}
		return src, true
	default:
		return InlineSource{}, false
	}
}

// inlineEngine compiles and runs inline function bodies via goja. Each
// call gets a fresh *goja.Runtime: inline functions are expected to be
// small, stateless, pure-ish snippets, not a shared scripting
// environment, so isolation is preferred over reuse.
type inlineEngine struct{}

func newInlineEngine() *inlineEngine { return &inlineEngine{} }

// compile adapts an inline function body into a Method. The resulting
// Method ignores sink; goja execution here is synchronous and does not
// expose a progress-event channel to the script.
func (e *inlineEngine) compile(name string, src InlineSource) (Method, bool) {
	if src.Body == "" {
		return nil, false
	}
	return func(ctx context.Context, sink EventSink, params any) (any, error) {
		vm := goja.New()
		fnVal, err := vm.RunString("(" + src.Body + ")")
		if err != nil {
			return nil, NewApplicationError("CompileError", "SyntaxError", nil, err)
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return nil, NewApplicationError("CompileError", "TypeError", nil,
				fmt.Errorf("workerruntime: inline body is not a function expression"))
		}

		args := make([]goja.Value, len(src.Args))
		for i, a := range src.Args {
			args[i] = vm.ToValue(a)
		}

		result, err := fn(goja.Undefined(), args...)
		if err != nil {
			if exc, ok := err.(*goja.Exception); ok {
				return nil, NewApplicationError("ApplicationError", "Error", nil, fmt.Errorf("%s", exc.Value().String()))
			}
			return nil, NewApplicationError("ApplicationError", "Error", nil, err)
		}
		return result.Export(), nil
	}, true
}
