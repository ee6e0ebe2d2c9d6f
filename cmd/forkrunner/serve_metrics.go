package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ingestrun/forkrunner/pkg/config"
	"github.com/ingestrun/forkrunner/pkg/log"
	"github.com/ingestrun/forkrunner/pkg/metrics"
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Expose the runner's Prometheus registry over HTTP",
	Long: `serve-metrics starts a read-only admin HTTP listener exposing
/metrics via promhttp. It does not implement run/shutdown/stream: the
task control plane belongs to the embedding service and stays out of
this binary entirely.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		addr := ":9090"
		if cfgPath != "" {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Metrics.Addr != "" {
				addr = cfg.Metrics.Addr
			}
		}
		if override, _ := cmd.Flags().GetString("addr"); override != "" {
			addr = override
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())

		log.Logger.Info().Str("addr", addr).Msg("serving metrics")
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveMetricsCmd.Flags().String("config", "", "Path to the forkrunner YAML config file")
	serveMetricsCmd.Flags().String("addr", "", "Override the metrics listen address from config")
}
