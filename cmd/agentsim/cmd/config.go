package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/agentsim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and scaffold configuration files",
}

var configInitOut string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if err := cfg.SaveToFile(configInitOut); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configInitOut)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Validate a config file and print the effective settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if len(args) == 1 {
			var err error
			if cfg, err = config.LoadFromFile(args[0]); err != nil {
				return err
			}
		}

		fmt.Printf("Symbols: %v\n", cfg.Backtest.Symbols)
		fmt.Printf("Range: %s .. %s\n", cfg.Backtest.StartDate, cfg.Backtest.EndDate)
		fmt.Printf("Initial Capital: $%.2f\n", cfg.Portfolio.InitialCapital)
		fmt.Printf("Commission/Slippage: %.4f / %.4f\n", cfg.Portfolio.CommissionRate, cfg.Portfolio.SlippageRate)
		fmt.Printf("Position Bounds: %.0f%% .. %.0f%%\n", cfg.Portfolio.MinPositionPct*100, cfg.Portfolio.MaxPositionPct*100)
		fmt.Printf("Cache: %d entries, ttl %s\n", cfg.Cache.Capacity, cfg.Cache.TTL)
		fmt.Printf("Caller: %d retries, threshold %d, cooldown %s\n",
			cfg.Caller.MaxRetries, cfg.Caller.FailureThreshold, cfg.Caller.Cooldown)
		fmt.Printf("Journal: %s\n", cfg.Journal.Type)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().StringVarP(&configInitOut, "out", "o", "agentsim.yaml", "output path (.yaml/.yml or .json)")
}
