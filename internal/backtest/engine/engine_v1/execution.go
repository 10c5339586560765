package engine

import (
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderExecutor converts order intents into filled Orders at a slippage- and
// commission-adjusted price, applying the cash side effects to the ledger and
// forwarding fills to the portfolio. All orders fill immediately and
// completely; REJECTED is reserved for non-positive quantity.
type OrderExecutor struct {
	config     BacktestConfig
	ledger     *Ledger
	portfolio  *Portfolio
	commission commission_fee.CommissionFee
	datasource datasource.DataSource
	logger     *logger.Logger

	currentBar types.MarketData

	// append-only log of every order of the run, filled and rejected
	orders []types.Order
}

func NewOrderExecutor(
	config BacktestConfig,
	ledger *Ledger,
	portfolio *Portfolio,
	commission commission_fee.CommissionFee,
	dataSource datasource.DataSource,
	logger *logger.Logger,
) *OrderExecutor {
	return &OrderExecutor{
		config:     config,
		ledger:     ledger,
		portfolio:  portfolio,
		commission: commission,
		datasource: dataSource,
		logger:     logger,
		currentBar: types.MarketData{},
		orders:     nil,
	}
}

// UpdateCurrentMarketData sets the bar orders execute against until the next
// update.
func (e *OrderExecutor) UpdateCurrentMarketData(bar types.MarketData) {
	e.currentBar = bar
}

// PlaceOrder executes an order intent against the current bar.
//
// Market orders (no limit price) fill at the bar close adjusted by slippage:
// buys pay close*(1+bps/10000), sells receive close*(1-bps/10000). Limit
// orders fill at the literal limit price with no slippage. Commission is
// charged on the fill notional regardless of side. An opposing intent larger
// than the open position is clamped to the open quantity; the excess is not
// executed (no same-bar direction flips).
//
// A non-positive quantity is recorded as a REJECTED order and the run
// continues. An unresolvable bar is fatal and returns ErrCodeMissingMarketData.
func (e *OrderExecutor) PlaceOrder(intent types.ExecuteOrder) (types.Order, optional.Option[types.Trade], error) {
	if intent.Quantity <= 0 {
		rejected := types.Order{
			OrderID:        uuid.New().String(),
			Symbol:         intent.Symbol,
			Side:           intent.Side,
			Quantity:       intent.Quantity,
			RequestedPrice: intent.LimitPrice,
			FilledPrice:    0,
			Commission:     0,
			Status:         types.OrderStatusRejected,
			Timestamp:      e.currentBar.Time,
			Reason: types.Reason{
				Reason:  types.OrderReasonInvalidQuantity,
				Message: "order quantity must be positive",
			},
		}
		e.orders = append(e.orders, rejected)

		e.logger.Warn("Order rejected",
			zap.String("symbol", intent.Symbol),
			zap.Float64("quantity", intent.Quantity),
		)

		return rejected, optional.None[types.Trade](), nil
	}

	bar, err := e.resolveBar(intent.Symbol)
	if err != nil {
		return types.Order{}, optional.None[types.Trade](), err
	}

	executePrice := e.executionPrice(intent, bar)

	// An opposing order larger than the open position closes it fully; the
	// excess quantity is not executed.
	quantity := intent.Quantity

	if existing := e.portfolio.Position(intent.Symbol); existing.IsSome() {
		open := existing.Unwrap()
		if types.PositionTypeForSide(intent.Side) != open.PositionType && quantity > open.Quantity {
			quantity = open.Quantity
		}
	}

	notionalDec := decimal.NewFromFloat(executePrice).Mul(decimal.NewFromFloat(quantity))
	notional, _ := notionalDec.Float64()
	commission := e.commission.Calculate(notional)
	commissionDec := decimal.NewFromFloat(commission)

	if intent.Side == types.PurchaseTypeBuy {
		buyingPower := e.ledger.Cash() * float64(e.config.Leverage)
		if notional+commission > buyingPower {
			e.logger.Warn("Order notional exceeds buying power",
				zap.String("symbol", intent.Symbol),
				zap.Float64("notional", notional),
				zap.Float64("buying_power", buyingPower),
			)
		}

		e.ledger.Debit(notionalDec.Add(commissionDec))
	} else {
		e.ledger.Credit(notionalDec.Sub(commissionDec))
	}

	order := types.Order{
		OrderID:        uuid.New().String(),
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		Quantity:       quantity,
		RequestedPrice: intent.LimitPrice,
		FilledPrice:    executePrice,
		Commission:     commission,
		Status:         types.OrderStatusFilled,
		Timestamp:      bar.Time,
		Reason:         intent.Reason,
	}
	e.orders = append(e.orders, order)

	trade := e.portfolio.ApplyFill(order)

	e.logger.Debug("Order filled",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("filled_price", order.FilledPrice),
		zap.Float64("commission", order.Commission),
	)

	return order, trade, nil
}

// Orders returns the append-only order log of the run.
func (e *OrderExecutor) Orders() []types.Order {
	return e.orders
}

// resolveBar returns the bar the order executes against. Orders for the
// current bar's symbol use it directly; anything else must be resolvable from
// the data source at the current timestamp.
func (e *OrderExecutor) resolveBar(symbol string) (types.MarketData, error) {
	if e.currentBar.Symbol == symbol && !e.currentBar.Time.IsZero() {
		return e.currentBar, nil
	}

	if e.datasource == nil {
		return types.MarketData{}, errors.Newf(errors.ErrCodeMissingMarketData,
			"no market data for symbol %s at %s", symbol, e.currentBar.Time)
	}

	bar, err := e.datasource.GetBarAt(symbol, e.currentBar.Time)
	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeMissingMarketData, err,
			"failed to resolve bar for symbol %s at %s", symbol, e.currentBar.Time)
	}

	if bar.IsNone() {
		return types.MarketData{}, errors.Newf(errors.ErrCodeMissingMarketData,
			"no market data for symbol %s at %s", symbol, e.currentBar.Time)
	}

	return bar.Unwrap(), nil
}

// executionPrice returns the fill price: the literal limit price when
// present, otherwise the slippage-adjusted bar close.
func (e *OrderExecutor) executionPrice(intent types.ExecuteOrder, bar types.MarketData) float64 {
	if intent.LimitPrice.IsSome() {
		return intent.LimitPrice.Unwrap()
	}

	closeDec := decimal.NewFromFloat(bar.Close)
	slippage := decimal.NewFromFloat(e.config.SlippageBps).Div(decimal.NewFromInt(10000))

	var priceDec decimal.Decimal
	if intent.Side == types.PurchaseTypeBuy {
		priceDec = closeDec.Mul(decimal.NewFromInt(1).Add(slippage))
	} else {
		priceDec = closeDec.Mul(decimal.NewFromInt(1).Sub(slippage))
	}

	price, _ := priceDec.Float64()

	return price
}
