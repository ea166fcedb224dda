// Package main is the entry point for the torn-tracker CLI.
//
// Usage:
//
//	torn-tracker track -c config.yaml    # Run the fetch pipeline
//	torn-tracker export -c config.yaml   # Export the snapshot as CSV
//	torn-tracker validate -c config.yaml # Validate configuration
//	torn-tracker version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "torn-tracker",
	Short: "Rate-limited batch tracker for Torn user statuses",
	Long: `torn-tracker polls the Torn API for the status of a tracked list of
users, through a shared rate limiter and a bounded worker pool, and keeps a
persisted snapshot of the latest results.

Quick start:
  1. Create a config file (config.yaml) with your API key
  2. Add targets to targets.json
  3. Run: torn-tracker track -c config.yaml

Example config:
  api_key: ${TORN_API_KEY}
  concurrency: 4
  auto_refresh: 5m
  storage:
    backend: sqlite
    sqlite_path: tracker.db`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this torn-tracker binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("torn-tracker %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
