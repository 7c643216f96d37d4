package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Angleito/Seiron-sub010/internal/observability"
	"github.com/Angleito/Seiron-sub010/internal/orchestrator"
)

const defaultConfigPath = "seiron-orchestrator.yaml"

// buildServeCmd creates the "serve" command that starts the
// orchestrator's adapter pool, health monitoring, and metrics endpoint.
func buildServeCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator",
		Long: `Start the orchestrator: initialises enabled adapter families, begins
agent/adapter health monitoring, and exposes Prometheus metrics.

Graceful shutdown is handled on SIGINT/SIGTERM: every adapter is torn
down in reverse registration order and health monitoring stops.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, metricsAddr, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve Prometheus metrics on")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath, metricsAddr string, debug bool) error {
	level := "info"
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level, Format: "json"})

	cfg, err := orchestrator.LoadConfig(configPath)
	if err != nil {
		logger.Warn(ctx, "falling back to default configuration", "error", err.Error(), "path", configPath)
		defaults := orchestrator.DefaultConfig()
		cfg = &defaults
	}
	if errs := orchestrator.ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}

	metrics := observability.NewMetrics()
	orch := orchestrator.New(*cfg, logger, metrics)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	logger.Info(ctx, "orchestrator started", "adapters", orch.GetAdapterCapabilities())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "metrics server failed", "error", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	return orch.Stop()
}
