package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/state"
	"github.com/ducminhle1904/tradeguard/pkg/reporting"
)

var statusPortfolio float64

// statusCmd prints the persisted risk counters and open brackets
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted risk state and active brackets",
	Long: `Status restores the last snapshot into a scratch risk gate and bracket manager
and prints them. It never contacts a broker; query a running guard through
its status API instead.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Float64Var(&statusPortfolio, "portfolio", 0, "Portfolio value for percentage columns")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	gate, err := risk.NewGate(cfg.Risk)
	if err != nil {
		return err
	}
	brackets, err := bracket.NewManager(cfg.Brackets)
	if err != nil {
		return err
	}
	if err := state.NewPersister(store, gate, brackets, nil).Load(ctx); err != nil {
		return err
	}

	console := reporting.NewDefaultConsoleReporter(cmd.OutOrStdout())
	console.PrintRiskSummary(gate.GetSummary(statusPortfolio))
	console.PrintActiveBrackets(brackets.GetActive())
	return nil
}
