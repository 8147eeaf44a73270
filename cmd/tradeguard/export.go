package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/tradeguard/internal/state"
	"github.com/ducminhle1904/tradeguard/pkg/reporting"
)

var (
	exportOutput string
	exportDir    string
)

// exportCmd writes a report from persisted state
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export executions and closed brackets from persisted state",
	Long: `Export reads the execution history and the closed brackets from the configured
state store and writes them as an Excel workbook. An output path ending in
.csv writes the executions as CSV instead.

Examples:
  tradeguard export
  tradeguard export --output reports/today.xlsx
  tradeguard export --output executions.csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: <dir>/tradeguard_<timestamp>.xlsx)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "reports", "Directory for the default output file")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := state.Open(ctx, cfg.Storage.StoreConfig, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	p := state.NewPersister(store, nil, nil, nil)
	closed, err := p.LoadHistory(ctx)
	if err != nil {
		return err
	}
	executions, err := p.LoadExecutions(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	path := exportOutput
	if path == "" {
		path = reporting.DefaultReportPath(exportDir, now)
	}
	report := reporting.Report{GeneratedAt: now, Executions: executions, Closed: closed}
	if err := reporting.Export(report, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "📊 Report written to %s (%d executions, %d closed brackets)\n", path, len(executions), len(closed))
	return nil
}
