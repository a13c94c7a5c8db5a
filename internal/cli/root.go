// Package cli holds the bingx-bot command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "bingx-bot",
	Short: "Automated BingX perpetual swap trading bot",
	Long: `bingx-bot streams BingX swap trades, builds multi-timeframe candles,
runs the configured strategies and trades their signals under risk control.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}
