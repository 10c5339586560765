package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents the current holdings of a single symbol. At most one
// position exists per symbol at any time; a long and a short for the same
// symbol can never coexist.
type Position struct {
	Symbol       string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	PositionType PositionType `yaml:"position_type" json:"position_type" csv:"position_type"`
	Quantity     float64      `yaml:"quantity" json:"quantity" csv:"quantity"`
	EntryPrice   float64      `yaml:"entry_price" json:"entry_price" csv:"entry_price"`
	// EntryTimestamp is the timestamp of the first fill that opened the
	// position. Partial closes keep it unchanged.
	EntryTimestamp time.Time `yaml:"entry_timestamp" json:"entry_timestamp" csv:"entry_timestamp"`
	CurrentPrice   float64   `yaml:"current_price" json:"current_price" csv:"current_price"`
	UnrealizedPnL  float64   `yaml:"unrealized_pnl" json:"unrealized_pnl" csv:"unrealized_pnl"`
	// TotalFees accumulates the commission paid on every fill of this
	// position so far, including scale-ins and partial closes.
	TotalFees float64 `yaml:"total_fees" json:"total_fees" csv:"total_fees"`
}

// MarkToMarket revalues the position at the given price, updating
// CurrentPrice and UnrealizedPnL.
func (p *Position) MarkToMarket(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnLAt(price)
}

// PnLAt returns the profit or loss of closing the full position at the given
// price: (price - entry) * qty for longs, (entry - price) * qty for shorts.
func (p *Position) PnLAt(price float64) float64 {
	entryDec := decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromFloat(p.Quantity))
	exitDec := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(p.Quantity))

	var resultDec decimal.Decimal
	if p.PositionType == PositionTypeShort {
		resultDec = entryDec.Sub(exitDec)
	} else {
		resultDec = exitDec.Sub(entryDec)
	}

	result, _ := resultDec.Float64()

	return result
}

// PnLPercent returns the unrealized P&L as a percentage of the entry
// notional. Returns 0 for an empty position.
func (p *Position) PnLPercent() float64 {
	notional := p.EntryPrice * p.Quantity
	if notional == 0 {
		return 0
	}

	return p.UnrealizedPnL / notional * 100
}

// MarketValue returns the signed value the position contributes to total
// equity: positive for longs, negative for shorts. The sign keeps the
// conservation invariant (equity = cash + sum of market values) exact for
// both directions, since opening a short credits cash.
func (p *Position) MarketValue() float64 {
	valueDec := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.CurrentPrice))
	if p.PositionType == PositionTypeShort {
		valueDec = valueDec.Neg()
	}

	value, _ := valueDec.Float64()

	return value
}
