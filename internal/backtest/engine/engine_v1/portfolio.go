package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Portfolio is the position and trade lifecycle manager. It owns the map from
// symbol to open position and the append-only trade log. Positions move
// through Flat -> Open -> (PartiallyClosed*) -> Closed; a full close emits an
// immutable Trade and removes the position from the map.
type Portfolio struct {
	positions map[string]*types.Position
	trades    []types.Trade
	logger    *logger.Logger
}

func NewPortfolio(logger *logger.Logger) *Portfolio {
	return &Portfolio{
		positions: make(map[string]*types.Position),
		trades:    nil,
		logger:    logger,
	}
}

// Position returns a copy of the open position for a symbol, or None when
// the symbol is flat.
func (p *Portfolio) Position(symbol string) optional.Option[types.Position] {
	position, ok := p.positions[symbol]
	if !ok {
		return optional.None[types.Position]()
	}

	return optional.Some(*position)
}

// Positions returns copies of all open positions, ordered by symbol for
// deterministic iteration.
func (p *Portfolio) Positions() []types.Position {
	symbols := make([]string, 0, len(p.positions))
	for symbol := range p.positions {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	positions := make([]types.Position, 0, len(symbols))
	for _, symbol := range symbols {
		positions = append(positions, *p.positions[symbol])
	}

	return positions
}

// MarkToMarket revalues the open position for the bar's symbol at the bar
// close. Called once per simulated bar, before any order execution for that
// bar.
func (p *Portfolio) MarkToMarket(bar types.MarketData) {
	position, ok := p.positions[bar.Symbol]
	if !ok {
		return
	}

	position.MarkToMarket(bar.Close)
}

// MarketValue returns the signed market value of all open positions.
func (p *Portfolio) MarketValue() float64 {
	total := decimal.Zero
	for _, position := range p.positions {
		total = total.Add(decimal.NewFromFloat(position.MarketValue()))
	}

	value, _ := total.Float64()

	return value
}

// ApplyFill updates the position state machine with a filled order. A fill on
// a flat symbol opens a position; a same-direction fill scales in at the
// volume-weighted entry price; an opposing fill reduces the position and, on
// full close, emits a Trade. The caller clamps opposing fills to the open
// quantity, but the reduction is re-clamped here as a safety net.
func (p *Portfolio) ApplyFill(order types.Order) optional.Option[types.Trade] {
	position, ok := p.positions[order.Symbol]
	if !ok {
		p.open(order)

		return optional.None[types.Trade]()
	}

	if types.PositionTypeForSide(order.Side) == position.PositionType {
		p.scaleIn(position, order)

		return optional.None[types.Trade]()
	}

	return p.reduce(position, order)
}

func (p *Portfolio) open(order types.Order) {
	position := &types.Position{
		Symbol:         order.Symbol,
		PositionType:   types.PositionTypeForSide(order.Side),
		Quantity:       order.Quantity,
		EntryPrice:     order.FilledPrice,
		EntryTimestamp: order.Timestamp,
		CurrentPrice:   order.FilledPrice,
		UnrealizedPnL:  0,
		TotalFees:      order.Commission,
	}
	p.positions[order.Symbol] = position

	p.logger.Debug("Position opened",
		zap.String("symbol", order.Symbol),
		zap.String("position_type", string(position.PositionType)),
		zap.Float64("quantity", position.Quantity),
		zap.Float64("entry_price", position.EntryPrice),
	)
}

func (p *Portfolio) scaleIn(position *types.Position, order types.Order) {
	oldNotional := decimal.NewFromFloat(position.EntryPrice).Mul(decimal.NewFromFloat(position.Quantity))
	addNotional := decimal.NewFromFloat(order.FilledPrice).Mul(decimal.NewFromFloat(order.Quantity))
	newQuantity := decimal.NewFromFloat(position.Quantity).Add(decimal.NewFromFloat(order.Quantity))

	entryPrice, _ := oldNotional.Add(addNotional).Div(newQuantity).Float64()
	quantity, _ := newQuantity.Float64()

	position.EntryPrice = entryPrice
	position.Quantity = quantity
	position.TotalFees += order.Commission
	position.MarkToMarket(order.FilledPrice)

	p.logger.Debug("Position increased",
		zap.String("symbol", order.Symbol),
		zap.Float64("quantity", position.Quantity),
		zap.Float64("entry_price", position.EntryPrice),
	)
}

func (p *Portfolio) reduce(position *types.Position, order types.Order) optional.Option[types.Trade] {
	closeQuantity := order.Quantity
	if closeQuantity > position.Quantity {
		closeQuantity = position.Quantity
	}

	if closeQuantity < position.Quantity {
		// Partial close: decrement quantity, keep entry price and timestamp,
		// no Trade is emitted.
		remaining, _ := decimal.NewFromFloat(position.Quantity).
			Sub(decimal.NewFromFloat(closeQuantity)).Float64()
		position.Quantity = remaining
		position.TotalFees += order.Commission
		position.MarkToMarket(order.FilledPrice)

		p.logger.Debug("Position partially closed",
			zap.String("symbol", order.Symbol),
			zap.Float64("closed_quantity", closeQuantity),
			zap.Float64("remaining_quantity", position.Quantity),
		)

		return optional.None[types.Trade]()
	}

	// Full close: realize P&L, emit a Trade, remove the position.
	closed := *position
	closed.Quantity = closeQuantity
	pnl := closed.PnLAt(order.FilledPrice)

	entryNotional := position.EntryPrice * closeQuantity

	pnlPercent := 0.0
	if entryNotional != 0 {
		pnlPercent = pnl / entryNotional * 100
	}

	trade := types.Trade{
		TradeID:        uuid.New().String(),
		Symbol:         position.Symbol,
		PositionType:   position.PositionType,
		EntryTimestamp: position.EntryTimestamp,
		ExitTimestamp:  order.Timestamp,
		EntryPrice:     position.EntryPrice,
		ExitPrice:      order.FilledPrice,
		Quantity:       closeQuantity,
		PnL:            pnl,
		PnLPercent:     pnlPercent,
		Commission:     position.TotalFees + order.Commission,
		Duration:       order.Timestamp.Sub(position.EntryTimestamp),
	}

	delete(p.positions, position.Symbol)
	p.trades = append(p.trades, trade)

	p.logger.Debug("Position closed",
		zap.String("symbol", trade.Symbol),
		zap.Float64("pnl", trade.PnL),
		zap.Float64("pnl_percent", trade.PnLPercent),
	)

	return optional.Some(trade)
}

// Trades returns the append-only trade log.
func (p *Portfolio) Trades() []types.Trade {
	return p.trades
}
