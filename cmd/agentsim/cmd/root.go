package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "agentsim",
	Short: "A multi-agent trading strategy backtester",
	Long: `Agentsim replays historical daily bars through a multi-agent decision
pipeline and simulates the resulting portfolio.

It provides tools for:
  - Backtesting the agent pipeline against historical data
  - Deterministic offline runs with a built-in rule provider
  - Per-symbol audit trails and equity curves (CSV or SQLite)
  - Gap, correlation and value-at-risk analysis per decision cycle

Complete documentation is available at https://github.com/rustyeddy/agentsim`,
}

var debug bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// .env is optional; flags and the config file win over it.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
