package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a trade in seconds
	Min int `yaml:"min"`
	// Maximum holding time of a trade in seconds
	Max int `yaml:"max"`
	// Average holding time of a trade in seconds
	Avg int `yaml:"avg"`
}

type TradePnl struct {
	// Realized PnL. Sum of all closed trades' pnl.
	RealizedPnL float64 `yaml:"realized_pnl"`
	// Maximum loss. Minimum closed-trade pnl, 0 when no trade lost.
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Maximum profit. Maximum closed-trade pnl, 0 when no trade won.
	MaximumProfit float64 `yaml:"maximum_profit"`
}

type TradeResult struct {
	// Count of all closed trades.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of winning trades that has positive pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of losing trades that has negative pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate as a fraction of all closed trades.
	WinRate float64 `yaml:"win_rate"`
}

// TradeStats is the per-symbol aggregation of the closed-trade log.
type TradeStats struct {
	// Symbol of the trading pair.
	Symbol string `yaml:"symbol"`
	// Result of all trades.
	TradeResult TradeResult `yaml:"trade_result"`
	// Total commission paid across entries and exits.
	TotalFees float64 `yaml:"total_fees"`
	// Holding time of all trades.
	TradeHoldingTime TradeHoldingTime `yaml:"trade_holding_time"`
	// PnL of all trades.
	TradePnl TradePnl `yaml:"trade_pnl"`
}

// WriteTradeStats writes the per-symbol stats to a YAML file for downstream
// reporting.
func WriteTradeStats(path string, stats []TradeStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats to file: %w", err)
	}

	return nil
}
