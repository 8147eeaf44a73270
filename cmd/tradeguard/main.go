package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/tradeguard/internal/config"
)

var (
	configPath string
	envFile    string
)

// rootCmd is the base command for the tradeguard CLI
var rootCmd = &cobra.Command{
	Use:   "tradeguard",
	Short: "Risk and execution guard for automated trading",
	Long: `tradeguard sits between a trading decision source and the brokers. It sizes
positions, enforces risk limits, attaches stop-loss/take-profit brackets and
watches broker health, pausing trading when a broker degrades.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file path")
}

// loadConfig loads the env file and the configuration named by the global flags
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
