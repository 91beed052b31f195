package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/taskpool/taskpool"
	"github.com/taskpool/taskpool/workerruntime"
)

// buildPool resolves the bound viper configuration into taskpool.Options
// and constructs a Pool running rt. Only the thread transport is wired
// up here: the bound worker_type setting is not read, and the demo has
// no flag for a process worker command.
func buildPool(rt *workerruntime.Runtime) (*taskpool.Pool, error) {
	opts := []taskpool.Option{
		taskpool.WithLogger(logger),
		taskpool.WithRuntime(rt),
	}

	if n := viper.GetInt("max_workers"); n > 0 {
		opts = append(opts, taskpool.WithMaxWorkers(n))
	}
	if n := viper.GetInt("min_workers"); n > 0 {
		opts = append(opts, taskpool.WithMinWorkers(n))
	}
	if n := viper.GetInt("max_queue_size"); n > 0 {
		opts = append(opts, taskpool.WithMaxQueueSize(n))
	}

	strategy, err := queueStrategyFromString(viper.GetString("queue_strategy"))
	if err != nil {
		return nil, err
	}
	opts = append(opts, taskpool.WithQueueStrategy(strategy))

	return taskpool.New(opts...)
}

func queueStrategyFromString(s string) (taskpool.QueueStrategy, error) {
	switch s {
	case "", "fifo":
		return taskpool.FIFO, nil
	case "lifo":
		return taskpool.LIFO, nil
	case "priority":
		return taskpool.Priority, nil
	case "shared-memory", "shared_memory":
		return taskpool.SharedMemory, nil
	default:
		return 0, fmt.Errorf("unknown queue-strategy %q", s)
	}
}
