package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/pkg/reporting"
)

var runShutdownTimeout time.Duration

// runCmd starts the guard service
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the guard with health monitoring, brackets and the status API",
	Long: `Run loads the configuration, restores persisted state, starts the broker
health watchdog, the bracket price monitor and the status server, and saves
snapshots periodically until SIGINT or SIGTERM.

Trade intents are submitted with POST /api/intents.`,
	RunE: runGuard,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runShutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to wait for a graceful shutdown")
}

func runGuard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewFileLogger(cfg.LogDir, "tradeguard", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.LogError("Startup", err)
		return err
	}

	log.Info("Starting tradeguard (%s), primary broker %s, %d broker(s) monitored",
		cfg.Environment, a.primary.Name(), len(a.brokers))

	errCh := make(chan error, 1)
	a.start(ctx, errCh)

	persistDone := make(chan struct{})
	go func() {
		a.persister.Run(ctx, cfg.Storage.SnapshotInterval)
		close(persistDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errCh:
		log.LogError("Runtime", runErr)
		stop()
	}
	<-persistDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runShutdownTimeout)
	defer cancel()
	a.stop(shutdownCtx)

	console := reporting.NewDefaultConsoleReporter(cmd.OutOrStdout())
	console.PrintBrokerHealth(a.monitor.GetSummary())
	console.PrintRiskSummary(a.gate.GetSummary(a.portfolioValue()))
	console.PrintActiveBrackets(a.brackets.GetActive())

	log.Info("tradeguard stopped")
	return runErr
}
