package engine

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/mocks"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type ExecutionTestSuite struct {
	suite.Suite
	config    BacktestConfig
	ledger    *Ledger
	portfolio *Portfolio
	executor  *OrderExecutor
}

func TestExecutionSuite(t *testing.T) {
	suite.Run(t, new(ExecutionTestSuite))
}

func (suite *ExecutionTestSuite) SetupTest() {
	suite.config = EmptyConfig()
	suite.config.InitialCapital = 10000
	suite.config.CommissionRate = 0.001
	suite.config.SlippageBps = 10

	log := logger.NewNopLogger()
	suite.ledger = NewLedger(suite.config.InitialCapital)
	suite.portfolio = NewPortfolio(log)
	suite.executor = NewOrderExecutor(
		suite.config,
		suite.ledger,
		suite.portfolio,
		commission_fee.NewRateCommissionFee(suite.config.CommissionRate),
		nil,
		log,
	)
}

func (suite *ExecutionTestSuite) bar(close float64) types.MarketData {
	return types.MarketData{
		Time:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Symbol: "AAPL",
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
		Volume: 1000,
	}
}

func (suite *ExecutionTestSuite) marketOrder(side types.PurchaseType, quantity float64) types.ExecuteOrder {
	return types.ExecuteOrder{
		Symbol:     "AAPL",
		Side:       side,
		Quantity:   quantity,
		LimitPrice: optional.None[float64](),
		Reason:     types.Reason{Reason: types.OrderReasonStrategy, Message: ""},
	}
}

func (suite *ExecutionTestSuite) TestBuyPaysSlippageAndCommission() {
	suite.executor.UpdateCurrentMarketData(suite.bar(100))

	order, trade, err := suite.executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(err)
	suite.True(trade.IsNone())

	// close * (1 + 10/10000)
	suite.InDelta(100.1, order.FilledPrice, 1e-9)
	suite.Equal(types.OrderStatusFilled, order.Status)

	notional := 100.1 * 10
	commission := notional * 0.001
	suite.InDelta(commission, order.Commission, 1e-9)
	suite.InDelta(10000-notional-commission, suite.ledger.Cash(), 1e-9)
}

func (suite *ExecutionTestSuite) TestSellReceivesSlippageDiscount() {
	suite.executor.UpdateCurrentMarketData(suite.bar(100))
	_, _, err := suite.executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(err)

	cashBefore := suite.ledger.Cash()

	order, trade, err := suite.executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeSell, 10))
	suite.Require().NoError(err)
	suite.True(trade.IsSome())

	// close * (1 - 10/10000)
	suite.InDelta(99.9, order.FilledPrice, 1e-9)

	notional := 99.9 * 10
	commission := notional * 0.001
	suite.InDelta(cashBefore+notional-commission, suite.ledger.Cash(), 1e-9)
}

func (suite *ExecutionTestSuite) TestLimitOrderFillsAtLiteralPrice() {
	suite.executor.UpdateCurrentMarketData(suite.bar(100))

	intent := suite.marketOrder(types.PurchaseTypeBuy, 5)
	intent.LimitPrice = optional.Some(99.5)

	order, _, err := suite.executor.PlaceOrder(intent)
	suite.Require().NoError(err)

	// limit orders bypass slippage entirely
	suite.Equal(99.5, order.FilledPrice)
	suite.True(order.RequestedPrice.IsSome())
	suite.Equal(99.5, order.RequestedPrice.Unwrap())
}

func (suite *ExecutionTestSuite) TestNonPositiveQuantityRejected() {
	suite.executor.UpdateCurrentMarketData(suite.bar(100))
	cashBefore := suite.ledger.Cash()

	order, trade, err := suite.executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeBuy, 0))

	// a rejection is recorded, not an error
	suite.Require().NoError(err)
	suite.True(trade.IsNone())
	suite.Equal(types.OrderStatusRejected, order.Status)
	suite.Equal(types.OrderReasonInvalidQuantity, order.Reason.Reason)
	suite.Equal(cashBefore, suite.ledger.Cash())
	suite.True(suite.portfolio.Position("AAPL").IsNone())
	suite.Len(suite.executor.Orders(), 1)
}

func (suite *ExecutionTestSuite) TestOpposingOrderClampedToOpenQuantity() {
	suite.executor.UpdateCurrentMarketData(suite.bar(100))
	_, _, err := suite.executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeBuy, 5))
	suite.Require().NoError(err)

	// selling 12 against a 5-unit long closes 5, never flips short
	order, trade, err := suite.executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeSell, 12))
	suite.Require().NoError(err)

	suite.Equal(5.0, order.Quantity)
	suite.True(trade.IsSome())
	suite.True(suite.portfolio.Position("AAPL").IsNone())
}

func (suite *ExecutionTestSuite) TestMissingMarketDataIsFatal() {
	// no current bar for this symbol and no data source to resolve it
	suite.executor.UpdateCurrentMarketData(suite.bar(100))

	intent := suite.marketOrder(types.PurchaseTypeBuy, 5)
	intent.Symbol = "MSFT"

	_, _, err := suite.executor.PlaceOrder(intent)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingMarketData))
}

func (suite *ExecutionTestSuite) withDataSource(source *mocks.MockDataSource) *OrderExecutor {
	return NewOrderExecutor(
		suite.config,
		suite.ledger,
		suite.portfolio,
		commission_fee.NewRateCommissionFee(suite.config.CommissionRate),
		source,
		logger.NewNopLogger(),
	)
}

func (suite *ExecutionTestSuite) TestOtherSymbolResolvedThroughDataSource() {
	ctrl := gomock.NewController(suite.T())
	source := mocks.NewMockDataSource(ctrl)

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	source.EXPECT().GetBarAt("MSFT", at).Return(optional.Some(types.MarketData{
		Time:   at,
		Symbol: "MSFT",
		Open:   250,
		High:   250,
		Low:    250,
		Close:  250,
		Volume: 500,
	}), nil)

	executor := suite.withDataSource(source)
	executor.UpdateCurrentMarketData(suite.bar(100))

	intent := suite.marketOrder(types.PurchaseTypeBuy, 2)
	intent.Symbol = "MSFT"

	order, _, err := executor.PlaceOrder(intent)
	suite.Require().NoError(err)

	// the fill prices off the resolved bar, slippage included
	suite.InDelta(250.25, order.FilledPrice, 1e-9)
	suite.True(suite.portfolio.Position("MSFT").IsSome())
}

func (suite *ExecutionTestSuite) TestDataSourceErrorIsFatal() {
	ctrl := gomock.NewController(suite.T())
	source := mocks.NewMockDataSource(ctrl)

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	source.EXPECT().GetBarAt("MSFT", at).
		Return(optional.None[types.MarketData](), errors.New(errors.ErrCodeQueryFailed, "query failed"))

	executor := suite.withDataSource(source)
	executor.UpdateCurrentMarketData(suite.bar(100))

	intent := suite.marketOrder(types.PurchaseTypeBuy, 2)
	intent.Symbol = "MSFT"

	_, _, err := executor.PlaceOrder(intent)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingMarketData))
	suite.Empty(executor.Orders())
}

func (suite *ExecutionTestSuite) TestDataSourceWithoutBarIsFatal() {
	ctrl := gomock.NewController(suite.T())
	source := mocks.NewMockDataSource(ctrl)

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	source.EXPECT().GetBarAt("MSFT", at).Return(optional.None[types.MarketData](), nil)

	executor := suite.withDataSource(source)
	executor.UpdateCurrentMarketData(suite.bar(100))

	intent := suite.marketOrder(types.PurchaseTypeBuy, 2)
	intent.Symbol = "MSFT"

	_, _, err := executor.PlaceOrder(intent)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingMarketData))
}

func (suite *ExecutionTestSuite) TestZeroSlippageFillsAtClose() {
	suite.config.SlippageBps = 0
	log := logger.NewNopLogger()
	executor := NewOrderExecutor(
		suite.config,
		suite.ledger,
		suite.portfolio,
		commission_fee.NewZeroCommissionFee(),
		nil,
		log,
	)
	executor.UpdateCurrentMarketData(suite.bar(123.45))

	order, _, err := executor.PlaceOrder(suite.marketOrder(types.PurchaseTypeBuy, 1))
	suite.Require().NoError(err)
	suite.Equal(123.45, order.FilledPrice)
	suite.Equal(0.0, order.Commission)
}
