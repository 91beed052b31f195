package tplog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger.With(map[string]any{"worker_id": 3}).Info("dispatched", map[string]any{"request_id": uint64(7)})

	out := buf.String()
	require.Contains(t, out, `"worker_id":3`)
	require.Contains(t, out, `"request_id":7`)
	require.Contains(t, out, `"message":"dispatched"`)
}

func TestDebugSuppressedBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})
	logger.Debug("should not appear", nil)
	require.Empty(t, buf.String())
}

func TestErrorIncludesErrField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})
	logger.Error("failed", errors.New("boom"), nil)
	require.Contains(t, buf.String(), "boom")
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	require.NotPanics(t, func() {
		Noop.With(map[string]any{"a": 1}).Info("x", nil)
		Noop.Error("y", errors.New("z"), nil)
	})
}
