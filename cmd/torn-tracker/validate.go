package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skillerious/torn-target-tracker/pkg/config"
	"github.com/skillerious/torn-target-tracker/pkg/store"
)

// validateCmd validates a config file without running the pipeline.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a torn-tracker configuration file without running the pipeline.

This command parses the YAML, expands environment variables, validates all
fields, and reports the effective settings.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  torn-tracker validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets, err := store.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return fmt.Errorf("invalid targets file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Rate limit:   %d calls / %s, min interval %s\n",
		cfg.RateLimit.MaxCalls, cfg.RateLimit.Period.Duration(), cfg.RateLimit.MinInterval.Duration())
	fmt.Fprintf(out, "  Retry:        %d attempts, backoff %s-%s\n",
		cfg.Retry.MaxAttempts, cfg.Retry.BaseBackoff.Duration(), cfg.Retry.MaxBackoff.Duration())
	fmt.Fprintf(out, "  Concurrency:  %d workers\n", cfg.Concurrency)
	fmt.Fprintf(out, "  Storage:      %s\n", cfg.Storage.Backend)
	if cfg.AutoRefresh.Duration() > 0 {
		fmt.Fprintf(out, "  Auto refresh: %s\n", cfg.AutoRefresh.Duration())
	} else {
		fmt.Fprintf(out, "  Auto refresh: disabled\n")
	}
	fmt.Fprintf(out, "  Targets:      %d (%s)\n", len(targets), cfg.TargetsFile)
	return nil
}
