package engine

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

// Signal is an order intent emitted by a strategy: trade this many units on
// this side, at the market.
type Signal struct {
	Side     types.PurchaseType
	Quantity float64
}

// StrategyContext is the read-only view of engine state exposed to the
// strategy callback. The strategy may read but must not mutate engine-owned
// structures.
type StrategyContext interface {
	// History returns the bars processed so far, excluding the current bar.
	// The strategy never observes a future bar.
	History() []types.MarketData
	// Position returns the open position for a symbol, or None when flat.
	Position(symbol string) optional.Option[types.Position]
	// Cash returns the current cash balance.
	Cash() float64
	// Equity returns the current total equity (cash plus open position value).
	Equity() float64
}

// StrategyFunc is invoked once per bar, after mark-to-market and risk checks.
// Returning None means no action this bar.
type StrategyFunc func(ctx StrategyContext, bar types.MarketData) optional.Option[Signal]

// OnProcessDataCallback is called for each bar processed. Returning an error
// aborts the run between bars.
type OnProcessDataCallback func(current int, total int) error

// RunRequest identifies the series to replay.
type RunRequest struct {
	Symbol   string
	Start    optional.Option[time.Time]
	End      optional.Option[time.Time]
	Interval optional.Option[datasource.Interval]
}

// BacktestResult is everything a finished run produces: the metrics plus the
// full order log, trade log, and equity/drawdown curves, all serializable for
// downstream reporting.
type BacktestResult struct {
	Metrics       types.BacktestMetrics `yaml:"metrics" json:"metrics"`
	Orders        []types.Order         `yaml:"orders" json:"orders"`
	Trades        []types.Trade         `yaml:"trades" json:"trades"`
	EquityCurve   []types.EquityPoint   `yaml:"equity_curve" json:"equity_curve"`
	DrawdownCurve []types.DrawdownPoint `yaml:"drawdown_curve" json:"drawdown_curve"`
}

type Engine interface {
	// Initialize the engine with the given YAML configuration.
	Initialize(config string) error
	// SetDataSource sets the price series provider for the engine.
	SetDataSource(dataSource datasource.DataSource) error
	// SetResultsFolder sets the output directory for saving backtest results.
	// When empty, nothing is written to disk.
	SetResultsFolder(folder string) error
	// Run replays the requested series bar by bar, invoking the strategy once
	// per bar. The context can cancel the run between bars, never mid-bar.
	Run(ctx context.Context, request RunRequest, strategy StrategyFunc, onProcessData optional.Option[OnProcessDataCallback]) (*BacktestResult, error)
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
