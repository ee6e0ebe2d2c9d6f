package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ingestrun/forkrunner/pkg/config"
	"github.com/ingestrun/forkrunner/pkg/log"
	"github.com/ingestrun/forkrunner/pkg/logpusher"
	"github.com/ingestrun/forkrunner/pkg/logutil"
	"github.com/ingestrun/forkrunner/pkg/runner"
	"github.com/ingestrun/forkrunner/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <task.json>",
	Short: "Submit a single task to a fresh orchestrator and wait for it to finish",
	Long: `run loads the forkrunner config, constructs an Orchestrator, submits the
task described by the given task.json file, and blocks until the child
process exits. SIGINT/SIGTERM trigger a graceful stop() instead of an
abrupt exit, so in-flight children get the stdin-close signal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		task, err := types.LoadTask(args[0])
		if err != nil {
			return fmt.Errorf("loading task: %w", err)
		}

		o := buildOrchestrator(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			log.Logger.Info().Msg("received shutdown signal, stopping orchestrator gracefully")
			o.Stop()
			cancel()
		}()

		completion := o.Run(ctx, task)
		status, err := completion.Wait(ctx)
		if err != nil {
			return fmt.Errorf("waiting for task completion: %w", err)
		}

		if !status.Success() {
			return fmt.Errorf("task %s finished unsuccessfully: %s", task.ID, status.Status)
		}
		log.Logger.Info().Str("task_id", task.ID).Str("status", status.Status).Msg("task completed")
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to the forkrunner YAML config file")
}

// buildOrchestrator wires a runner.Orchestrator from a loaded config, the
// same collaborator set an embedding service would inject.
func buildOrchestrator(cfg *config.Config) *runner.Orchestrator {
	var pusher types.TaskLogPusher = logpusher.Noop{}
	if cfg.Task.BaseTaskDir != "" {
		pusher = logpusher.LocalArchive{Dir: cfg.Task.BaseTaskDir + "/archive"}
	}

	return runner.New(runner.Deps{
		TaskConfig:   cfg.TaskConfig(),
		RunnerConfig: cfg.RunnerConfig(),
		WorkerConfig: cfg.WorkerConfig(),
		Properties:   cfg.PropertiesMap(),
		LogPusher:    pusher,
		LogUtils:     logutil.FileStreamer{},
		Node:         cfg.Node(),
	})
}
