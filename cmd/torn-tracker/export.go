package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skillerious/torn-target-tracker/pkg/config"
	"github.com/skillerious/torn-target-tracker/pkg/store"
)

// exportCmd writes the persisted snapshot as CSV.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the persisted snapshot as CSV",
	Long: `Export the last persisted snapshot of target records as CSV.

Writes to stdout by default, or to a file with -o.

Example:
  torn-tracker export -c config.yaml
  torn-tracker export -c config.yaml -o targets.csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	exportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	_ = exportCmd.MarkFlagRequired("config")
}

func runExport(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	configFile, _ := cmd.Flags().GetString("config")
	output, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.LoadSnapshot(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := store.ExportCSV(w, records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), output)
	}
	return nil
}
