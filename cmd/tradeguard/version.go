package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, overridden with -ldflags "-X main.version=..."
var (
	version   = "0.1.0"
	commit    = "dev"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tradeguard v%s\n", version)
		fmt.Fprintf(out, "Build: %s (%s)\n", commit, buildDate)
		fmt.Fprintf(out, "Go: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
