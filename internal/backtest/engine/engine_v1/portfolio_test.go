package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/stretchr/testify/suite"
)

type PortfolioTestSuite struct {
	suite.Suite
	portfolio *Portfolio
}

func TestPortfolioSuite(t *testing.T) {
	suite.Run(t, new(PortfolioTestSuite))
}

func (suite *PortfolioTestSuite) SetupTest() {
	suite.portfolio = NewPortfolio(logger.NewNopLogger())
}

func (suite *PortfolioTestSuite) fill(symbol string, side types.PurchaseType, quantity float64, price float64, commission float64, at time.Time) optional.Option[types.Trade] {
	return suite.portfolio.ApplyFill(types.Order{
		OrderID:        uuid.New().String(),
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		RequestedPrice: optional.None[float64](),
		FilledPrice:    price,
		Commission:     commission,
		Status:         types.OrderStatusFilled,
		Timestamp:      at,
		Reason:         types.Reason{Reason: types.OrderReasonStrategy, Message: ""},
	})
}

func (suite *PortfolioTestSuite) TestOpenLongPosition() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	trade := suite.fill("AAPL", types.PurchaseTypeBuy, 10, 100, 1, at)

	suite.True(trade.IsNone())

	position := suite.portfolio.Position("AAPL")
	suite.Require().True(position.IsSome())
	suite.Equal(types.PositionTypeLong, position.Unwrap().PositionType)
	suite.Equal(10.0, position.Unwrap().Quantity)
	suite.Equal(100.0, position.Unwrap().EntryPrice)
	suite.Equal(at, position.Unwrap().EntryTimestamp)
}

func (suite *PortfolioTestSuite) TestScaleInVolumeWeightedEntry() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	suite.fill("AAPL", types.PurchaseTypeBuy, 10, 100, 1, at)
	trade := suite.fill("AAPL", types.PurchaseTypeBuy, 10, 110, 1, at.Add(time.Minute))

	suite.True(trade.IsNone())

	position := suite.portfolio.Position("AAPL").Unwrap()
	suite.Equal(20.0, position.Quantity)
	suite.InDelta(105.0, position.EntryPrice, 1e-9)
	// entry timestamp stays at the original open
	suite.Equal(at, position.EntryTimestamp)
}

func (suite *PortfolioTestSuite) TestPartialCloseEmitsNoTrade() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	suite.fill("AAPL", types.PurchaseTypeBuy, 10, 100, 1, at)
	trade := suite.fill("AAPL", types.PurchaseTypeSell, 4, 110, 1, at.Add(time.Minute))

	suite.True(trade.IsNone())
	suite.Empty(suite.portfolio.Trades())

	position := suite.portfolio.Position("AAPL").Unwrap()
	suite.InDelta(6.0, position.Quantity, 1e-9)
	suite.Equal(100.0, position.EntryPrice)
}

func (suite *PortfolioTestSuite) TestFullCloseEmitsTrade() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	exit := at.Add(30 * time.Minute)

	suite.fill("AAPL", types.PurchaseTypeBuy, 10, 100, 1, at)
	trade := suite.fill("AAPL", types.PurchaseTypeSell, 10, 110, 2, exit)

	suite.Require().True(trade.IsSome())
	suite.True(suite.portfolio.Position("AAPL").IsNone())

	closed := trade.Unwrap()
	suite.Equal("AAPL", closed.Symbol)
	suite.Equal(types.PositionTypeLong, closed.PositionType)
	suite.Equal(10.0, closed.Quantity)
	suite.InDelta(100.0, closed.PnL, 1e-9)
	suite.InDelta(10.0, closed.PnLPercent, 1e-9)
	// entry fee plus exit fee
	suite.InDelta(3.0, closed.Commission, 1e-9)
	suite.Equal(30*time.Minute, closed.Duration)
	suite.Equal(at, closed.EntryTimestamp)
	suite.Equal(exit, closed.ExitTimestamp)
	suite.Len(suite.portfolio.Trades(), 1)
}

func (suite *PortfolioTestSuite) TestTradeCommissionCoversAllFills() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	suite.fill("AAPL", types.PurchaseTypeBuy, 10, 100, 1, at)
	suite.fill("AAPL", types.PurchaseTypeBuy, 10, 110, 1.1, at.Add(time.Minute))
	suite.fill("AAPL", types.PurchaseTypeSell, 5, 112, 0.56, at.Add(2*time.Minute))

	position := suite.portfolio.Position("AAPL").Unwrap()
	suite.InDelta(2.66, position.TotalFees, 1e-9)

	trade := suite.fill("AAPL", types.PurchaseTypeSell, 15, 115, 1.725, at.Add(3*time.Minute))
	suite.Require().True(trade.IsSome())

	// every fill of the lifecycle contributes: entry, scale-in, partial
	// close, and the final exit
	suite.InDelta(4.385, trade.Unwrap().Commission, 1e-9)
}

func (suite *PortfolioTestSuite) TestShortLifecycle() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	suite.fill("TSLA", types.PurchaseTypeSell, 5, 200, 1, at)

	position := suite.portfolio.Position("TSLA").Unwrap()
	suite.Equal(types.PositionTypeShort, position.PositionType)
	// shorts carry negative market value
	suite.InDelta(-1000.0, suite.portfolio.MarketValue(), 1e-9)

	trade := suite.fill("TSLA", types.PurchaseTypeBuy, 5, 180, 1, at.Add(time.Hour))
	suite.Require().True(trade.IsSome())
	// short profits when price falls: (200 - 180) * 5
	suite.InDelta(100.0, trade.Unwrap().PnL, 1e-9)
}

func (suite *PortfolioTestSuite) TestMarkToMarket() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	suite.fill("AAPL", types.PurchaseTypeBuy, 10, 100, 1, at)

	suite.portfolio.MarkToMarket(types.MarketData{
		Time:   at.Add(time.Minute),
		Symbol: "AAPL",
		Close:  105,
	})

	position := suite.portfolio.Position("AAPL").Unwrap()
	suite.Equal(105.0, position.CurrentPrice)
	suite.InDelta(50.0, position.UnrealizedPnL, 1e-9)
	suite.InDelta(5.0, position.PnLPercent(), 1e-9)
}

func (suite *PortfolioTestSuite) TestPositionsSortedBySymbol() {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	suite.fill("MSFT", types.PurchaseTypeBuy, 1, 100, 0, at)
	suite.fill("AAPL", types.PurchaseTypeBuy, 1, 100, 0, at)
	suite.fill("GOOG", types.PurchaseTypeBuy, 1, 100, 0, at)

	positions := suite.portfolio.Positions()
	suite.Require().Len(positions, 3)
	suite.Equal("AAPL", positions[0].Symbol)
	suite.Equal("GOOG", positions[1].Symbol)
	suite.Equal("MSFT", positions[2].Symbol)
}
