package commission_fee

import "github.com/shopspring/decimal"

// CommissionFee calculates the commission charged on a fill.
type CommissionFee interface {
	// Calculate returns the commission in account currency for a fill with
	// the given notional (execution price times quantity). Always >= 0 and
	// charged regardless of side.
	Calculate(notional float64) float64
}

// RateCommissionFee charges a fixed fraction of the fill notional.
type RateCommissionFee struct {
	rate decimal.Decimal
}

// NewRateCommissionFee creates a commission model charging rate * notional.
// Negative rates are clamped to zero.
func NewRateCommissionFee(rate float64) *RateCommissionFee {
	if rate < 0 {
		rate = 0
	}

	return &RateCommissionFee{
		rate: decimal.NewFromFloat(rate),
	}
}

// Calculate implements CommissionFee.
func (c *RateCommissionFee) Calculate(notional float64) float64 {
	if notional < 0 {
		notional = -notional
	}

	fee, _ := decimal.NewFromFloat(notional).Mul(c.rate).Float64()

	return fee
}

// ZeroCommissionFee charges nothing. Useful for frictionless baseline runs.
type ZeroCommissionFee struct{}

func NewZeroCommissionFee() *ZeroCommissionFee {
	return &ZeroCommissionFee{}
}

// Calculate implements CommissionFee.
func (c *ZeroCommissionFee) Calculate(_ float64) float64 {
	return 0
}
