package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ingestrun/forkrunner/pkg/config"
	"github.com/ingestrun/forkrunner/pkg/log"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Re-submit every task the restore store believes was live at last shutdown",
	Long: `restore loads the forkrunner config, constructs an Orchestrator, and
drives its crash-restart protocol: reads restore.json, reloads each
listed task's task.json, and re-submits the restorable ones. It then
waits for all of them to finish before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if !cfg.Task.RestoreTasksOnRestart {
			log.Logger.Info().Msg("restoreTasksOnRestart is disabled, nothing to do")
			return nil
		}

		o := buildOrchestrator(cfg)
		ctx := context.Background()

		completions := o.Restore(ctx)
		log.Logger.Info().Int("count", len(completions)).Msg("re-submitted restorable tasks")

		failures := 0
		for _, c := range completions {
			status, err := c.Wait(ctx)
			if err != nil {
				failures++
				continue
			}
			if !status.Success() {
				failures++
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d restored tasks finished unsuccessfully", failures, len(completions))
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().String("config", "", "Path to the forkrunner YAML config file")
}
