package engine

import (
	"fmt"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"go.uber.org/zap"
)

// RiskGovernor evaluates stop-loss, take-profit, and max-drawdown thresholds
// once per bar, after mark-to-market and before the strategy callback.
// Threshold breaches synthesize full-close orders executed immediately,
// bypassing the strategy callback for that symbol this bar.
type RiskGovernor struct {
	config   BacktestConfig
	executor *OrderExecutor
	logger   *logger.Logger
}

func NewRiskGovernor(config BacktestConfig, executor *OrderExecutor, logger *logger.Logger) *RiskGovernor {
	return &RiskGovernor{
		config:   config,
		executor: executor,
		logger:   logger,
	}
}

// CheckPosition evaluates the bar symbol's open position against the
// stop-loss and take-profit thresholds. Only the bar's symbol is evaluated;
// positions in other symbols are checked when their own bars arrive, since a
// foreign bar carries no fresh price for them. Returns true when a forced
// close was executed, in which case the strategy callback is skipped for this
// symbol this bar.
func (r *RiskGovernor) CheckPosition(portfolio *Portfolio, bar types.MarketData) (bool, error) {
	existing := portfolio.Position(bar.Symbol)
	if existing.IsNone() {
		return false, nil
	}

	position := existing.Unwrap()
	pnlPct := position.PnLPercent()

	if r.config.StopLossPct.IsSome() && pnlPct <= -r.config.StopLossPct.Unwrap() {
		if err := r.forceClose(position, types.OrderReasonStopLoss, pnlPct); err != nil {
			return false, err
		}

		return true, nil
	}

	if r.config.TakeProfitPct.IsSome() && pnlPct >= r.config.TakeProfitPct.Unwrap() {
		if err := r.forceClose(position, types.OrderReasonTakeProfit, pnlPct); err != nil {
			return false, err
		}

		return true, nil
	}

	return false, nil
}

// ShouldHalt reports whether the current drawdown fraction breaches the
// configured max drawdown threshold. A breach is a controlled halt of the
// whole run, not an error.
func (r *RiskGovernor) ShouldHalt(drawdownFraction float64) bool {
	if r.config.MaxDrawdownPct.IsNone() {
		return false
	}

	return drawdownFraction*100 > r.config.MaxDrawdownPct.Unwrap()
}

func (r *RiskGovernor) forceClose(position types.Position, reason string, pnlPct float64) error {
	r.logger.Info("Risk governor forcing position close",
		zap.String("symbol", position.Symbol),
		zap.String("reason", reason),
		zap.Float64("pnl_pct", pnlPct),
	)

	intent := types.ExecuteOrder{
		Symbol:     position.Symbol,
		Side:       types.OppositeSide(position.PositionType),
		Quantity:   position.Quantity,
		LimitPrice: optional.None[float64](),
		Reason: types.Reason{
			Reason:  reason,
			Message: fmt.Sprintf("pnl_pct %.4f breached %s threshold", pnlPct, reason),
		},
	}

	_, _, err := r.executor.PlaceOrder(intent)

	return err
}
