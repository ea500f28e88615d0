package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/agentsim/backtest"
	"github.com/rustyeddy/agentsim/config"
	"github.com/rustyeddy/agentsim/market"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest over historical daily bars",
	Long: `Run replays the configured date range through the agent pipeline, one
decision cycle per symbol per trading day, and prints a summary.

Data is one CSV per symbol under --data (rows: date,open,high,low,close,volume[,rsi,macd]).

Example:
  agentsim run -c agentsim.yaml --data ./data`,
	RunE: runBacktest,
}

var (
	runConfigPath string
	runDataDir    string
	runSymbols    []string
	runStart      string
	runEnd        string
	runDBPath     string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to config file (YAML or JSON)")
	runCmd.Flags().StringVar(&runDataDir, "data", "", "directory of per-symbol CSV files (overrides config)")
	runCmd.Flags().StringSliceVarP(&runSymbols, "symbols", "s", nil, "symbols to simulate (overrides config)")
	runCmd.Flags().StringVar(&runStart, "start", "", "start date YYYY-MM-DD (overrides config)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "end date YYYY-MM-DD (overrides config)")
	runCmd.Flags().StringVarP(&runDBPath, "db", "d", "", "journal to this SQLite file (overrides config)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(runConfigPath); err != nil {
			return err
		}
	}

	if len(runSymbols) > 0 {
		cfg.Backtest.Symbols = runSymbols
	}
	if runStart != "" {
		cfg.Backtest.StartDate = runStart
	}
	if runEnd != "" {
		cfg.Backtest.EndDate = runEnd
	}
	if runDataDir != "" {
		cfg.Backtest.DataDir = runDataDir
	}
	if runDBPath != "" {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = runDBPath
	}
	cfg.Backtest.Debug = cfg.Backtest.Debug || debug

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Backtest.DataDir == "" {
		return fmt.Errorf("no data directory configured (--data or backtest.data_dir)")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	md := market.NewFileProvider()
	for _, sym := range cfg.Backtest.Symbols {
		path := filepath.Join(cfg.Backtest.DataDir, sym+".csv")
		if err := md.LoadSymbol(sym, path); err != nil {
			return err
		}
	}

	engine, err := backtest.New(cfg, md, nil, nil, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running backtest\n")
	fmt.Printf("  Symbols: %v\n", cfg.Backtest.Symbols)
	fmt.Printf("  Range: %s .. %s\n\n", cfg.Backtest.StartDate, cfg.Backtest.EndDate)

	res, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nBacktest Complete!\n")
	if res.Cancelled {
		fmt.Printf("  (cancelled early)\n")
	}
	fmt.Printf("  Trading days: %d\n", res.TradingDays)
	fmt.Printf("  Decisions: %d (%d filled)\n", len(res.Decisions), res.Filled())
	fmt.Printf("  Transactions: %d\n", len(res.Transactions))
	fmt.Printf("  Cash: $%.2f\n", res.FinalState.Cash)
	fmt.Printf("  Total Value: $%.2f\n", res.FinalState.TotalValue)
	fmt.Printf("  Return: %.2f%%\n", res.Return(cfg.Portfolio.InitialCapital)*100)
	for sym, pos := range res.FinalState.Positions {
		fmt.Printf("  Open: %s x%.0f @ $%.2f\n", sym, pos.Quantity, pos.EntryPrice)
	}

	return nil
}
