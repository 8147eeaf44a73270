package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/tradeguard/internal/sizing"
	"github.com/ducminhle1904/tradeguard/pkg/reporting"
)

var (
	sizePortfolio float64
	sizePrice     float64
	sizeStopLoss  float64
	sizeWinRate   float64
	sizeAvgWin    float64
	sizeAvgLoss   float64
	sizeMethod    string
)

// sizeCmd computes a position size without touching any broker
var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Compute a position size with the configured sizing policy",
	Long: `Size prints the position the configured policy would take. Use --method all
to compare every sizing method side by side.

Examples:
  tradeguard size --portfolio 100000 --price 250
  tradeguard size --portfolio 100000 --price 250 --stop 245 --method risk_based
  tradeguard size --portfolio 100000 --price 250 --win-rate 0.55 --avg-win 300 --avg-loss 200 --method all`,
	RunE: runSize,
}

func init() {
	rootCmd.AddCommand(sizeCmd)
	sizeCmd.Flags().Float64Var(&sizePortfolio, "portfolio", 0, "Portfolio value (required)")
	sizeCmd.Flags().Float64Var(&sizePrice, "price", 0, "Entry price (required)")
	sizeCmd.Flags().Float64Var(&sizeStopLoss, "stop", 0, "Stop-loss price for risk based sizing")
	sizeCmd.Flags().Float64Var(&sizeWinRate, "win-rate", 0, "Historical win rate for Kelly sizing (0-1)")
	sizeCmd.Flags().Float64Var(&sizeAvgWin, "avg-win", 0, "Average winning trade for Kelly sizing")
	sizeCmd.Flags().Float64Var(&sizeAvgLoss, "avg-loss", 0, "Average losing trade for Kelly sizing")
	sizeCmd.Flags().StringVar(&sizeMethod, "method", "", "Override the configured method (fixed, percentage, risk_based, kelly, all)")
	sizeCmd.MarkFlagRequired("portfolio")
	sizeCmd.MarkFlagRequired("price")
}

func runSize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sizePortfolio <= 0 || sizePrice <= 0 {
		return fmt.Errorf("--portfolio and --price must be positive")
	}

	req := sizing.Request{PortfolioValue: sizePortfolio, Price: sizePrice}
	if cmd.Flags().Changed("stop") {
		req.StopLoss = sizing.Float(sizeStopLoss)
	}
	if cmd.Flags().Changed("win-rate") || cmd.Flags().Changed("avg-win") || cmd.Flags().Changed("avg-loss") {
		req.WinRate = sizing.Float(sizeWinRate)
		req.AvgWin = sizing.Float(sizeAvgWin)
		req.AvgLoss = sizing.Float(sizeAvgLoss)
	}

	methods := []sizing.Method{cfg.Sizing.Method}
	switch sizeMethod {
	case "":
	case "all":
		methods = []sizing.Method{sizing.MethodFixed, sizing.MethodPercentage, sizing.MethodRiskBased, sizing.MethodKelly}
	default:
		m, err := sizing.ParseMethod(sizeMethod)
		if err != nil {
			return err
		}
		methods = []sizing.Method{m}
	}

	results := make([]sizing.Result, 0, len(methods))
	for _, m := range methods {
		policy := cfg.Sizing
		policy.Method = m
		calc, err := sizing.NewCalculator(policy)
		if err != nil {
			return err
		}
		res, err := calc.CalculatePositionSize(req)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	reporting.NewDefaultConsoleReporter(cmd.OutOrStdout()).PrintSizing(sizePrice, results)
	return nil
}
