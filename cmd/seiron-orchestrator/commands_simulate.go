package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Angleito/Seiron-sub010/internal/domain"
	"github.com/Angleito/Seiron-sub010/internal/observability"
	"github.com/Angleito/Seiron-sub010/internal/orchestrator"
)

// buildSimulateCmd creates the "simulate" command: a local smoke-test
// that feeds a single intent through the orchestrator without a front
// end, NLP layer, or persisted session.
func buildSimulateCmd() *cobra.Command {
	var (
		configPath string
		intentPath string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Process one JSON-encoded intent and print the resulting task result",
		Long: `Reads a single JSON-encoded Intent (from --intent, or stdin if omitted),
runs it through analyseIntent, selectAgent, createTask, and executeTask,
and prints the resulting TaskResult as JSON.

Only adapter-backed actions can succeed in simulate mode: no domain
agents are registered, since agent implementations are external
workers outside the orchestrator's scope.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, configPath, intentPath, sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&intentPath, "intent", "", "Path to a JSON-encoded Intent file (default: read from stdin)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to attach to the simulated request (default: a generated UUID)")
	return cmd
}

func runSimulate(cmd *cobra.Command, configPath, intentPath, sessionID string) error {
	ctx := cmd.Context()

	var raw []byte
	var err error
	if intentPath != "" {
		raw, err = os.ReadFile(intentPath)
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read intent: %w", err)
	}

	var intent domain.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return fmt.Errorf("parse intent: %w", err)
	}
	if intent.ID == "" {
		intent.ID = domain.NewID()
	}

	cfg, err := orchestrator.LoadConfig(configPath)
	if err != nil {
		defaults := orchestrator.DefaultConfig()
		cfg = &defaults
	}

	logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "json"})
	metrics := observability.NewMetrics()
	orch := orchestrator.New(*cfg, logger, metrics)

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	result := orch.ProcessIntent(ctx, intent, sessionID)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Status != domain.TaskCompleted {
		return fmt.Errorf("simulated task did not complete: %s", result.Status)
	}
	return nil
}
