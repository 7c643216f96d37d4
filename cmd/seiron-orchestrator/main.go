// Package main provides the CLI entry point for the Seiron agent
// orchestrator: a scheduler, message router, agent registry and
// blockchain-adapter multiplexer serving a DeFi assistant's back end.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "seiron-orchestrator",
		Short: "Seiron agent orchestrator",
		Long: `Seiron's back-end agent orchestrator: accepts structured DeFi intents,
selects an eligible agent or blockchain adapter from a live registry,
dispatches a task, and returns a typed result.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildValidateConfigCmd(),
		buildSimulateCmd(),
	)
	return rootCmd
}
