package workerruntime

import (
	"errors"

	"github.com/taskpool/taskpool/protocol"
)

// payloadError lets a Method attach Kind/Name/Extras to its returned
// error while still satisfying the plain error interface, so dispatch
// code doesn't need a second return channel for wire metadata.
type payloadError struct {
	kind, name string
	extras     map[string]any
	cause      error
}

func (e *payloadError) Error() string { return e.cause.Error() }
func (e *payloadError) Unwrap() error { return e.cause }

// NewApplicationError wraps cause with the Kind/Name/Extras a Method
// wants reported on the wire. Methods
// that just return a plain error get a generic "Error" kind/name instead.
func NewApplicationError(kind, name string, extras map[string]any, cause error) error {
	return &payloadError{kind: kind, name: name, extras: extras, cause: cause}
}

// applicationError builds a generic ApplicationError-shaped payload for
// runtime-internal failures (method not found, panic recovery) that
// didn't originate from a Method's own return value.
func applicationError(err error) *protocol.ErrorPayload {
	return &protocol.ErrorPayload{Kind: "ApplicationError", Name: "Error", Message: err.Error()}
}

// toErrorPayload converts a Method's returned error into the wire shape,
// preferring metadata attached via NewApplicationError.
func toErrorPayload(err error) *protocol.ErrorPayload {
	var pe *payloadError
	if errors.As(err, &pe) {
		return &protocol.ErrorPayload{
			Kind:    pe.kind,
			Name:    pe.name,
			Message: pe.cause.Error(),
			Extras:  pe.extras,
		}
	}
	return applicationError(err)
}
