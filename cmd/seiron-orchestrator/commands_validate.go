package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Angleito/Seiron-sub010/internal/orchestrator"
)

// buildValidateConfigCmd creates the "validate-config" command, useful
// in CI or before a deploy to catch a malformed configuration early.
func buildValidateConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runValidateConfig(cmd *cobra.Command, configPath string) error {
	cfg, err := orchestrator.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	errs := orchestrator.ValidateConfig(cfg)
	if len(errs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", configPath)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d error(s)\n", configPath, len(errs))
	for _, e := range errs {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", e)
	}
	return fmt.Errorf("configuration is invalid")
}
