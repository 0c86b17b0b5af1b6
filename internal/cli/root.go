// Package cli provides the Cobra-based command-line interface for toolstats.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toolstats",
	Short: "Usage analytics service for browser-based utility tools",
	Long: `toolstats records tool-usage events from embedded analytics clients,
maintains per-session and per-day rollups, and serves aggregate queries
behind a rate-limited HTTP API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
