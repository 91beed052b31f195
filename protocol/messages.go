package protocol

// CleanupSentinel is the reserved method name used for the cleanup
// request/response pair. It shares the request/response
// Message shape instead of inventing a new frame kind.
const CleanupSentinel = "__taskpool_cleanup__"

// MethodsSentinel is the reserved method name the Pool uses to ask a
// worker to enumerate its registered methods.
const MethodsSentinel = "__taskpool_methods__"

// Signal is a distinguished, non-correlated control message. Ready and
// Terminate are sentinel-shaped (not an object with an id) specifically so
// they can never collide with a legal task response.
type Signal int

const (
	// SignalNone is the zero value; never sent.
	SignalNone Signal = iota
	// SignalReady is sent by the worker exactly once after it initializes.
	SignalReady
	// SignalTerminate is sent by the main side to request graceful shutdown.
	SignalTerminate
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalTerminate:
		return "terminate"
	default:
		return "none"
	}
}

// ErrorPayload is the wire shape of a serialised error: it
// carries the minimum a reconstructing side needs to build a typed error,
// plus an open bag of any other fields the failing method attached.
type ErrorPayload struct {
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Stack   string         `json:"stack,omitempty"`
	Extras  map[string]any `json:"extras,omitempty"`
}

// TaskRequest is a Main -> Worker task dispatch.
type TaskRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`

	// Inline marks Method as an inline function body rather than a
	// registered method name). A worker runtime
	// that doesn't support inline execution rejects these with an
	// ApplicationError.
	Inline bool `json:"inline,omitempty"`

	Transfer [][]byte `json:"-"` // never serialised; thread transport only
}

// CleanupRequest is a Main -> Worker request to abort task ID gracefully.
func CleanupRequest(id uint64) TaskRequest {
	return TaskRequest{ID: id, Method: CleanupSentinel}
}

// MethodsRequest is a Main -> Worker request to list registered methods.
func MethodsRequest(id uint64) TaskRequest {
	return TaskRequest{ID: id, Method: MethodsSentinel}
}

// TaskResponse is a Worker -> Main message: task success/failure, an
// event, or a cleanup response, disambiguated by the IsEvent flag and
// whether Method equals CleanupSentinel.
type TaskResponse struct {
	ID      uint64        `json:"id"`
	Method  string        `json:"method,omitempty"`
	Result  any           `json:"result,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
	IsEvent bool          `json:"is_event,omitempty"`
	Payload any           `json:"payload,omitempty"`
}

// StreamFragment carries captured worker stdout/stderr when the
// transport is configured with EmitStdStreams. A fragment with no
// currently active task is dropped.
type StreamFragment struct {
	Stream string `json:"stream"` // "stdout" or "stderr"
	Data   []byte `json:"data"`
}

// Message is the envelope carried across a Transport. Exactly one of the
// fields is meaningful for any given message; callers type-switch on it.
type Message struct {
	Signal   Signal
	Request  *TaskRequest
	Response *TaskResponse
	Fragment *StreamFragment
}

// IsControl reports whether m carries a sentinel-shaped control signal
// rather than a correlated request/response.
func (m Message) IsControl() bool {
	return m.Signal != SignalNone
}
