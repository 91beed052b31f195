package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpool/taskpool"
	"github.com/taskpool/taskpool/workerruntime"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a small sample workload through a Pool and print its stats",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Int("tasks", 20, "number of sample tasks to submit")
}

func runRun(cmd *cobra.Command, args []string) error {
	taskCount, _ := cmd.Flags().GetInt("tasks")

	rt := workerruntime.New()
	_ = rt.Register("add", func(_ context.Context, _ workerruntime.EventSink, params any) (any, error) {
		pair, ok := params.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("add: expected [a, b]")
		}
		a, _ := pair[0].(int)
		b, _ := pair[1].(int)
		return a + b, nil
	})

	p, err := buildPool(rt)
	if err != nil {
		return err
	}
	defer p.Terminate(false, 5*time.Second).Wait(context.Background())

	results := make([]*taskpool.Result, taskCount)
	for i := 0; i < taskCount; i++ {
		r, err := p.Submit("add", []any{i, i}, taskpool.TaskOptions{})
		if err != nil {
			return fmt.Errorf("submit task %d: %w", i, err)
		}
		results[i] = r
	}

	for i, r := range results {
		value, err := r.Wait(cmd.Context())
		if err != nil {
			logger.Warn("task failed", map[string]any{"index": i, "error": err.Error()})
			continue
		}
		logger.Debug("task resolved", map[string]any{"index": i, "value": value})
	}

	stats := p.Stats()
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
