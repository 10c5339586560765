package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EquityPoint is a single sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Equity    float64   `yaml:"equity" json:"equity" csv:"equity"`
}

// DrawdownPoint is a single sample of the drawdown curve. Drawdown is the
// fractional decline from the historical equity peak: (peak - equity) / peak.
type DrawdownPoint struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Drawdown  float64   `yaml:"drawdown" json:"drawdown" csv:"drawdown"`
}

// BacktestMetrics is a pure function of the finished run's trade log and
// equity/drawdown curves. Computed once at run completion, never mutated.
type BacktestMetrics struct {
	// InitialCapital is the starting capital of the run.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	// FinalEquity is the total equity at the last sampled bar.
	FinalEquity float64 `yaml:"final_equity" json:"final_equity"`
	// TotalReturn is final equity minus initial capital.
	TotalReturn float64 `yaml:"total_return" json:"total_return"`
	// TotalReturnPct is TotalReturn as a percentage of initial capital.
	TotalReturnPct float64 `yaml:"total_return_pct" json:"total_return_pct"`
	// CAGR is the compound annual growth rate over the run period.
	CAGR float64 `yaml:"cagr" json:"cagr"`
	// Volatility is the annualized standard deviation of daily returns.
	Volatility float64 `yaml:"volatility" json:"volatility"`
	// SharpeRatio is mean/stdev of daily returns, annualized with sqrt(252).
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// SortinoRatio uses only the stdev of negative daily returns.
	SortinoRatio float64 `yaml:"sortino_ratio" json:"sortino_ratio"`
	// CalmarRatio is CAGR divided by max drawdown.
	CalmarRatio float64 `yaml:"calmar_ratio" json:"calmar_ratio"`
	// MaxDrawdownPct is the maximum of the drawdown curve, in percent.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	// WinRate is winning trades over total trades, in percent.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// ProfitFactor is the sum of winning pnl over the absolute sum of losing
	// pnl. +Inf when there are no losing trades, 0 when there are no trades.
	ProfitFactor  float64 `yaml:"profit_factor" json:"profit_factor"`
	TotalTrades   int     `yaml:"total_trades" json:"total_trades"`
	WinningTrades int     `yaml:"winning_trades" json:"winning_trades"`
	LosingTrades  int     `yaml:"losing_trades" json:"losing_trades"`
	// HaltedByDrawdownLimit is true when the run stopped early because the
	// configured max drawdown threshold was breached.
	HaltedByDrawdownLimit bool `yaml:"halted_by_drawdown_limit" json:"halted_by_drawdown_limit"`
}

// WriteMetrics writes the metrics to a YAML file for downstream reporting.
func WriteMetrics(path string, metrics BacktestMetrics) error {
	data, err := yaml.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics to file: %w", err)
	}

	return nil
}
