package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/examples/strategy"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine"
	engine_v1 "github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// backtestAction is the core logic executed by the CLI command. It wires the
// data source and strategy into the engine and replays the requested series.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPath := cmd.String("data")
	symbol := cmd.String("symbol")
	resultsFolder := cmd.String("results")
	intervalFlag := cmd.String("interval")
	fast := cmd.Int("fast")
	slow := cmd.Int("slow")
	quantity := cmd.Float("quantity")

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	backtester := engine_v1.NewBacktestEngineV1()
	if err := backtester.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize backtest engine: %w", err)
	}

	source, err := openDataSource(dataPath)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := backtester.SetDataSource(source); err != nil {
		return fmt.Errorf("failed to set data source: %w", err)
	}

	if resultsFolder != "" {
		if err := backtester.SetResultsFolder(resultsFolder); err != nil {
			return fmt.Errorf("failed to set results folder: %w", err)
		}
	}

	request := engine.RunRequest{
		Symbol:   symbol,
		Start:    timestampFlag(cmd, "start"),
		End:      timestampFlag(cmd, "end"),
		Interval: optional.None[datasource.Interval](),
	}
	if intervalFlag != "" {
		request.Interval = optional.Some(datasource.Interval(intervalFlag))
	}

	var bar *progressbar.ProgressBar

	onProcessData := engine.OnProcessDataCallback(func(current int, total int) error {
		if bar == nil {
			bar = progressbar.Default(int64(total))
		}

		return bar.Set(current)
	})

	result, err := backtester.Run(ctx, request, strategy.NewSMACross(int(fast), int(slow), quantity), optional.Some(onProcessData))
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	log.Printf("Final equity: %.2f (return %.2f%%)", result.Metrics.FinalEquity, result.Metrics.TotalReturnPct)
	log.Printf("Trades: %d (win rate %.1f%%), max drawdown %.2f%%, sharpe %.2f",
		result.Metrics.TotalTrades, result.Metrics.WinRate, result.Metrics.MaxDrawdownPct, result.Metrics.SharpeRatio)

	if resultsFolder != "" {
		log.Printf("Results written to %s", resultsFolder)
	}

	return nil
}

// openDataSource picks the provider from the data file extension: CSV loads
// into memory, anything else goes through DuckDB (csv or parquet).
func openDataSource(path string) (datasource.DataSource, error) {
	if filepath.Ext(path) == ".csv" {
		source, err := datasource.NewMemoryDataSourceFromCSV(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load CSV data: %w", err)
		}

		return source, nil
	}

	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	source, err := datasource.NewDataSource(":memory:", log)
	if err != nil {
		return nil, fmt.Errorf("failed to open data source: %w", err)
	}

	if err := source.Initialize(path); err != nil {
		return nil, err
	}

	return source, nil
}

func timestampFlag(cmd *cli.Command, name string) optional.Option[time.Time] {
	value := cmd.Timestamp(name)
	if value.IsZero() {
		return optional.None[time.Time]()
	}

	return optional.Some(value)
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay historical market data through a strategy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the backtest YAML config",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the market data file (csv or parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"t"},
				Usage:    "Symbol to replay",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
				Required: false,
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
				Required: false,
			},
			&cli.StringFlag{
				Name:     "interval",
				Aliases:  []string{"i"},
				Usage:    "Aggregate bars to this interval (1m, 5m, 15m, 30m, 1h, 4h, 1d)",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "results",
				Aliases:  []string{"r"},
				Usage:    "Directory for result artifacts (parquet logs, metrics, stats)",
				Value:    "results",
				Required: false,
			},
			&cli.IntFlag{
				Name:  "fast",
				Usage: "Fast moving average window for the crossover strategy",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "slow",
				Usage: "Slow moving average window for the crossover strategy",
				Value: 30,
			},
			&cli.FloatFlag{
				Name:  "quantity",
				Usage: "Order quantity for the crossover strategy",
				Value: 10,
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
