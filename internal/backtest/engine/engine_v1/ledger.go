package engine

import (
	"time"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/shopspring/decimal"
)

// Ledger owns the run's cash balance, the peak-capital high-water mark, and
// the equity/drawdown curves. All mutation happens synchronously within a
// single bar iteration; the ledger needs no locking because each engine
// instance owns its ledger exclusively.
type Ledger struct {
	cash        decimal.Decimal
	peakCapital decimal.Decimal

	// append-only, strictly increasing in timestamp
	equityCurve   []types.EquityPoint
	drawdownCurve []types.DrawdownPoint
}

func NewLedger(initialCapital float64) *Ledger {
	capital := decimal.NewFromFloat(initialCapital)

	return &Ledger{
		cash:          capital,
		peakCapital:   capital,
		equityCurve:   nil,
		drawdownCurve: nil,
	}
}

// Debit reduces cash by the given amount.
func (l *Ledger) Debit(amount decimal.Decimal) {
	l.cash = l.cash.Sub(amount)
}

// Credit increases cash by the given amount.
func (l *Ledger) Credit(amount decimal.Decimal) {
	l.cash = l.cash.Add(amount)
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	cash, _ := l.cash.Float64()

	return cash
}

// PeakCapital returns the historical maximum of total equity. It is
// monotonically non-decreasing over the run.
func (l *Ledger) PeakCapital() float64 {
	peak, _ := l.peakCapital.Float64()

	return peak
}

// Equity returns total equity given the signed market value of all open
// positions: equity = cash + positionsValue.
func (l *Ledger) Equity(positionsValue float64) float64 {
	equity, _ := l.cash.Add(decimal.NewFromFloat(positionsValue)).Float64()

	return equity
}

// Sample appends one point to the equity curve and one to the drawdown curve
// for the given timestamp, advancing the peak-capital high-water mark first.
// Returns the sampled equity and drawdown fraction.
func (l *Ledger) Sample(timestamp time.Time, positionsValue float64) (float64, float64) {
	equityDec := l.cash.Add(decimal.NewFromFloat(positionsValue))

	if equityDec.GreaterThan(l.peakCapital) {
		l.peakCapital = equityDec
	}

	drawdown := decimal.Zero
	if l.peakCapital.IsPositive() {
		drawdown = l.peakCapital.Sub(equityDec).Div(l.peakCapital)
	}

	equity, _ := equityDec.Float64()
	drawdownFraction, _ := drawdown.Float64()

	l.equityCurve = append(l.equityCurve, types.EquityPoint{
		Timestamp: timestamp,
		Equity:    equity,
	})
	l.drawdownCurve = append(l.drawdownCurve, types.DrawdownPoint{
		Timestamp: timestamp,
		Drawdown:  drawdownFraction,
	})

	return equity, drawdownFraction
}

// CurrentDrawdown returns the most recently sampled drawdown fraction, or 0
// before the first sample.
func (l *Ledger) CurrentDrawdown() float64 {
	if len(l.drawdownCurve) == 0 {
		return 0
	}

	return l.drawdownCurve[len(l.drawdownCurve)-1].Drawdown
}

// EquityCurve returns the equity curve samples.
func (l *Ledger) EquityCurve() []types.EquityPoint {
	return l.equityCurve
}

// DrawdownCurve returns the drawdown curve samples.
func (l *Ledger) DrawdownCurve() []types.DrawdownPoint {
	return l.drawdownCurve
}
