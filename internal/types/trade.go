package types

import "time"

// Trade is an immutable record emitted exactly once per full position close.
// The trade log is append-only.
type Trade struct {
	TradeID        string       `yaml:"trade_id" json:"trade_id" csv:"trade_id"`
	Symbol         string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	PositionType   PositionType `yaml:"position_type" json:"position_type" csv:"position_type"`
	EntryTimestamp time.Time    `yaml:"entry_timestamp" json:"entry_timestamp" csv:"entry_timestamp"`
	ExitTimestamp  time.Time    `yaml:"exit_timestamp" json:"exit_timestamp" csv:"exit_timestamp"`
	EntryPrice     float64      `yaml:"entry_price" json:"entry_price" csv:"entry_price"`
	ExitPrice      float64      `yaml:"exit_price" json:"exit_price" csv:"exit_price"`
	Quantity       float64      `yaml:"quantity" json:"quantity" csv:"quantity"`
	// PnL is the realized profit or loss, before commission.
	PnL float64 `yaml:"pnl" json:"pnl" csv:"pnl"`
	// PnLPercent is PnL as a percentage of the entry notional.
	PnLPercent float64 `yaml:"pnl_percent" json:"pnl_percent" csv:"pnl_percent"`
	// Commission is the total fees paid across the position's fills, entry
	// through exit.
	Commission float64       `yaml:"commission" json:"commission" csv:"commission"`
	Duration   time.Duration `yaml:"duration" json:"duration" csv:"duration"`
}
