// Command taskpool-demo is a small CLI wrapping the taskpool package:
// construct a Pool from flags/config/env, run a sample workload through
// it, and print occupancy stats. It exists to exercise the Pool from a
// real binary rather than only from tests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskpool/taskpool/tplog"
)

var (
	cfgFile string
	logger  tplog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskpool-demo",
	Short: "Drive a taskpool.Pool from the command line",
	Long: `taskpool-demo builds a worker pool from flags, a config file, or
environment variables (TASKPOOL_*), runs a small workload through it, and
reports the resulting stats.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./taskpool.yaml)")
	rootCmd.PersistentFlags().Int("max-workers", 0, "hard cap on concurrent workers (0 = runtime default)")
	rootCmd.PersistentFlags().Int("min-workers", 0, "workers created eagerly at startup")
	rootCmd.PersistentFlags().Int("max-queue-size", 0, "max pending tasks (0 = unbounded)")
	rootCmd.PersistentFlags().String("queue-strategy", "fifo", "fifo | lifo | priority | shared-memory")
	rootCmd.PersistentFlags().String("worker-type", "auto", "auto | thread | process (not read: the demo always uses the thread transport)")
	rootCmd.PersistentFlags().String("log-level", "info", "debug | info | warn | error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured JSON logs instead of console format")

	_ = viper.BindPFlag("max_workers", rootCmd.PersistentFlags().Lookup("max-workers"))
	_ = viper.BindPFlag("min_workers", rootCmd.PersistentFlags().Lookup("min-workers"))
	_ = viper.BindPFlag("max_queue_size", rootCmd.PersistentFlags().Lookup("max-queue-size"))
	_ = viper.BindPFlag("queue_strategy", rootCmd.PersistentFlags().Lookup("queue-strategy"))
	_ = viper.BindPFlag("worker_type", rootCmd.PersistentFlags().Lookup("worker-type"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(proxyCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("taskpool")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("TASKPOOL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // absent config file is not an error

	logger = tplog.New(tplog.Config{
		Level:      tplog.Level(viper.GetString("log_level")),
		JSONOutput: viper.GetBool("log_json"),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "taskpool-demo:", err)
		os.Exit(1)
	}
}
