package taskpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskpool/taskpool/transport"
)

func TestResolvePoolOptionsDefaults(t *testing.T) {
	o, err := resolvePoolOptions(nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, o.maxWorkers, 1)
	require.Equal(t, 0, o.minWorkers)
	require.Equal(t, FIFO, o.queueStrategy)
}

func TestWithMaxWorkersRejectsNonPositive(t *testing.T) {
	_, err := resolvePoolOptions([]Option{WithMaxWorkers(0)})
	require.Error(t, err)
	require.IsType(t, &ValidationError{}, err)
}

func TestWithMinWorkersMaxResolvesToMaxWorkers(t *testing.T) {
	o, err := resolvePoolOptions([]Option{WithMaxWorkers(4), WithMinWorkersMax()})
	require.NoError(t, err)
	require.Equal(t, 4, o.minWorkers)
}

func TestMinWorkersAboveMaxWorkersRejected(t *testing.T) {
	_, err := resolvePoolOptions([]Option{WithMaxWorkers(2), WithMinWorkers(3)})
	require.Error(t, err)
}

func TestWithSharedQueueCapacityRejectsNonPowerOfTwo(t *testing.T) {
	_, err := resolvePoolOptions([]Option{WithSharedQueueCapacity(100)})
	require.Error(t, err)

	o, err := resolvePoolOptions([]Option{WithSharedQueueCapacity(128)})
	require.NoError(t, err)
	require.Equal(t, 128, o.sharedQueueCapacity)
}

func TestWithAdapterRejectsNil(t *testing.T) {
	_, err := resolvePoolOptions([]Option{WithAdapter(nil)})
	require.Error(t, err)
}

func TestNewRejectsProcessWorkerTypeWithoutAdapter(t *testing.T) {
	_, err := New(WithWorkerType(ProcessWorker))
	require.Error(t, err)
	require.IsType(t, &ValidationError{}, err)
}

func TestNewThreadsEmitStdStreamsIntoProcessAdapter(t *testing.T) {
	pa := &transport.ProcessAdapter{}
	p, err := New(WithAdapter(pa), WithEmitStdStreams(true))
	require.NoError(t, err)
	defer p.Terminate(true, 0)
	require.True(t, pa.EmitStdStreams)
}

func TestNewLeavesEmitStdStreamsOffByDefault(t *testing.T) {
	pa := &transport.ProcessAdapter{}
	p, err := New(WithAdapter(pa))
	require.NoError(t, err)
	defer p.Terminate(true, 0)
	require.False(t, pa.EmitStdStreams)
}
