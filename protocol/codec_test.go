package protocol

import (
	"bufio"
	"bytes"
	"testing"
)

func TestJSONCodecRoundTripRequest(t *testing.T) {
	var buf bytes.Buffer
	codec := JSONCodec{}

	req := TaskRequest{ID: 42, Method: "add", Params: []any{float64(3), float64(4)}}
	if err := codec.Encode(&buf, Message{Request: &req}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Request == nil {
		t.Fatalf("expected request, got %+v", got)
	}
	if got.Request.ID != req.ID || got.Request.Method != req.Method {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.Request, req)
	}
}

func TestJSONCodecRoundTripSignal(t *testing.T) {
	var buf bytes.Buffer
	codec := JSONCodec{}

	if err := codec.Encode(&buf, Message{Signal: SignalReady}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Signal != SignalReady {
		t.Fatalf("got signal %v, want SignalReady", got.Signal)
	}
}

func TestJSONCodecRoundTripResponseWithError(t *testing.T) {
	var buf bytes.Buffer
	codec := JSONCodec{}

	resp := TaskResponse{
		ID: 7,
		Error: &ErrorPayload{
			Kind:    "application",
			Name:    "RangeError",
			Message: "out of bounds",
			Stack:   "at foo\nat bar",
			Extras:  map[string]any{"index": float64(5)},
		},
	}
	if err := codec.Encode(&buf, Message{Response: &resp}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Response == nil || got.Response.Error == nil {
		t.Fatalf("expected response with error, got %+v", got)
	}
	if got.Response.Error.Name != "RangeError" || got.Response.Error.Extras["index"] != float64(5) {
		t.Fatalf("error payload mismatch: %+v", got.Response.Error)
	}
}

func TestJSONCodecMaxFrameBytes(t *testing.T) {
	var buf bytes.Buffer
	codec := JSONCodec{MaxFrameBytes: 4}

	req := TaskRequest{ID: 1, Method: "a-rather-long-method-name-that-exceeds-the-limit"}
	plain := JSONCodec{}
	if err := plain.Encode(&buf, Message{Request: &req}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := codec.Decode(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected frame-too-large error, got nil")
	}
}

func TestMessageIsControl(t *testing.T) {
	if (Message{}).IsControl() {
		t.Fatal("zero-value message should not be control")
	}
	if !(Message{Signal: SignalTerminate}).IsControl() {
		t.Fatal("terminate signal should be control")
	}
}

func TestDirectCodecPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic from DirectCodec.Encode")
		}
	}()
	_ = DirectCodec{}.Encode(nil, Message{})
}
