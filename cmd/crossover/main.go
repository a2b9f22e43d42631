package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newthinker/crossover/internal/app"
	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/config"
	"github.com/newthinker/crossover/internal/logger"
)

var (
	cfgFile     string
	debug       bool
	symbol      string
	fromDate    string
	toDate      string
	shortWindow int
	longWindow  int
)

var rootCmd = &cobra.Command{
	Use:   "crossover",
	Short: "Dual-SMA crossover backtester",
	Long: `crossover runs a dual moving-average crossover strategy against daily
price history and compares it to buy-and-hold. Results go to the trade log,
the equity chart and the configured archive.`,
	SilenceUsage: true,
	RunE:         runCrossover,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")

	rootCmd.Flags().StringVar(&symbol, "symbol", "", "Symbol to backtest (required)")
	rootCmd.Flags().StringVar(&fromDate, "from", "", "Start date YYYY-MM-DD (required)")
	rootCmd.Flags().StringVar(&toDate, "to", "", "End date YYYY-MM-DD (required)")
	rootCmd.Flags().IntVar(&shortWindow, "short", backtest.DefaultShortWindow, "Short SMA window in bars")
	rootCmd.Flags().IntVar(&longWindow, "long", backtest.DefaultLongWindow, "Long SMA window in bars")

	rootCmd.MarkFlagRequired("symbol")
	rootCmd.MarkFlagRequired("from")
	rootCmd.MarkFlagRequired("to")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCrossover(cmd *cobra.Command, args []string) error {
	start, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return fmt.Errorf("invalid from date (expected YYYY-MM-DD): %w", err)
	}
	end, err := time.Parse("2006-01-02", toDate)
	if err != nil {
		return fmt.Errorf("invalid to date (expected YYYY-MM-DD): %w", err)
	}
	if !start.Before(end) {
		return fmt.Errorf("from date must be before to date")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.Must(debug)
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Run(cmd.Context(), app.RunRequest{
		Symbol: symbol,
		Start:  start,
		End:    end,
	})
	if err != nil && out == nil {
		return err
	}

	printResults(out, cfg)
	return err
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Defaults()
	}

	// Flags beat file values, but only when actually set.
	if cmd.Flags().Changed("short") {
		cfg.Backtest.ShortWindow = shortWindow
	}
	if cmd.Flags().Changed("long") {
		cfg.Backtest.LongWindow = longWindow
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printResults(out *app.RunOutput, cfg *config.Config) {
	result := out.Result
	stats := result.Stats

	fmt.Println("=== Crossover Backtest ===")
	fmt.Printf("Symbol:    %s\n", result.Symbol)
	fmt.Printf("Windows:   SMA(%d/%d)\n", result.ShortWindow, result.LongWindow)
	if n := result.Len(); n > 0 {
		fmt.Printf("Period:    %s to %s (%d bars)\n",
			result.Dates[0].Format("2006-01-02"),
			result.Dates[n-1].Format("2006-01-02"), n)
	}
	fmt.Println()

	fmt.Printf("Final equity:     %.4f\n", stats.FinalEquity)
	fmt.Printf("Buy & hold:       %.4f\n", stats.BenchmarkFinal)
	fmt.Printf("Total return:     %.2f%%\n", stats.TotalReturn*100)
	fmt.Printf("Benchmark return: %.2f%%\n", stats.BenchmarkReturn*100)
	if !math.IsNaN(stats.CAGR) {
		fmt.Printf("CAGR:             %.2f%%\n", stats.CAGR*100)
	}
	fmt.Printf("Sharpe ratio:     %.2f\n", stats.SharpeRatio)
	fmt.Printf("Max drawdown:     %.2f%% (%d bars underwater)\n",
		stats.MaxDrawdown*100, stats.MaxDrawdownDays)
	fmt.Println()

	fmt.Printf("Trades:   %d (%d won / %d lost", stats.TotalTrades,
		stats.WinningTrades, stats.LosingTrades)
	if stats.OpenTrade {
		fmt.Print(", 1 open")
	}
	fmt.Println(")")
	if stats.WinningTrades+stats.LosingTrades > 0 {
		fmt.Printf("Win rate: %.1f%%\n", stats.WinRate)
	}
	fmt.Println()

	fmt.Printf("Run ID:    %s\n", out.RunID)
	if cfg.Storage.Tradelog.Enabled {
		fmt.Printf("Trade log: %s\n", cfg.Storage.Tradelog.Path)
	}
	if out.ChartPath != "" {
		fmt.Printf("Chart:     %s\n", out.ChartPath)
	}
	if out.ArchiveKey != "" {
		fmt.Printf("Archive:   %s\n", out.ArchiveKey)
	}
}
