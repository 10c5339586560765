package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// BacktestEngineV1 replays a bar series through a strategy callback,
// simulating order execution, position lifecycle, and risk thresholds, and
// produces the run's metrics and logs.
type BacktestEngineV1 struct {
	config        BacktestConfig
	resultsFolder string
	log           *logger.Logger
	state         *BacktestState
	datasource    datasource.DataSource
}

func NewBacktestEngineV1() engine.Engine {
	return &BacktestEngineV1{
		config:        EmptyConfig(),
		resultsFolder: "",
		log:           nil,
		state:         nil,
		datasource:    nil,
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	if err := yaml.Unmarshal([]byte(config), &b.config); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "failed to parse backtest config", err)
	}

	if err := b.config.Validate(); err != nil {
		return err
	}

	var loggerError error

	b.log, loggerError = logger.NewLogger()
	if loggerError != nil {
		return loggerError
	}

	b.log.Debug("Backtest engine initialized",
		zap.String("config", config),
	)

	b.state = NewBacktestState(b.log)
	if b.state == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "failed to create backtest state")
	}

	if err := b.state.Initialize(); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to initialize state", err)
	}

	return nil
}

// SetDataSource implements engine.Engine.
func (b *BacktestEngineV1) SetDataSource(dataSource datasource.DataSource) error {
	b.datasource = dataSource

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder

	return nil
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	return b.config.GenerateSchemaJSON()
}

// Run implements engine.Engine. The replay is deterministic: same bars, same
// config, same strategy yields the identical result.
func (b *BacktestEngineV1) Run(
	ctx context.Context,
	request engine.RunRequest,
	strategy engine.StrategyFunc,
	onProcessData optional.Option[engine.OnProcessDataCallback],
) (*engine.BacktestResult, error) {
	if b.state == nil {
		return nil, errors.New(errors.ErrCodeBacktestStateNil, "engine is not initialized")
	}

	if b.datasource == nil {
		return nil, errors.New(errors.ErrCodeBacktestNoDatasource, "no data source is set")
	}

	if strategy == nil {
		return nil, errors.New(errors.ErrCodeBacktestNoStrategy, "no strategy is set")
	}

	bars, err := b.materializeBars(request)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "no market data for request symbol %q", request.Symbol)
	}

	ledger := NewLedger(b.config.InitialCapital)
	portfolio := NewPortfolio(b.log)
	executor := NewOrderExecutor(b.config, ledger, portfolio, b.commissionFee(), b.datasource, b.log)
	risk := NewRiskGovernor(b.config, executor, b.log)
	runCtx := &runContext{
		history:   nil,
		portfolio: portfolio,
		ledger:    ledger,
	}

	halted := false
	total := len(bars)

	b.log.Info("Backtest run started",
		zap.String("symbol", request.Symbol),
		zap.Int("bars", total),
		zap.Float64("initial_capital", b.config.InitialCapital),
	)

	var lastBar types.MarketData

	for i, bar := range bars {
		// Cancellation is honored between bars only; a bar is never half
		// processed.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(errors.ErrCodeBacktestCancelled, "backtest cancelled", ctxErr)
		}

		executor.UpdateCurrentMarketData(bar)
		portfolio.MarkToMarket(bar)

		forced, err := risk.CheckPosition(portfolio, bar)
		if err != nil {
			return nil, err
		}

		// A forced close consumes the strategy's turn for this symbol this bar.
		if !forced {
			if signal := strategy(runCtx, bar); signal.IsSome() {
				intent := types.ExecuteOrder{
					Symbol:     bar.Symbol,
					Side:       signal.Unwrap().Side,
					Quantity:   signal.Unwrap().Quantity,
					LimitPrice: optional.None[float64](),
					Reason: types.Reason{
						Reason:  types.OrderReasonStrategy,
						Message: "strategy signal",
					},
				}

				if _, _, err := executor.PlaceOrder(intent); err != nil {
					return nil, err
				}
			}
		}

		runCtx.history = append(runCtx.history, bar)
		lastBar = bar

		_, drawdown := ledger.Sample(bar.Time, portfolio.MarketValue())

		if onProcessData.IsSome() {
			if err := onProcessData.Unwrap()(i+1, total); err != nil {
				return nil, errors.Wrap(errors.ErrCodeBacktestCancelled, "process callback aborted the run", err)
			}
		}

		if risk.ShouldHalt(drawdown) {
			b.log.Warn("Max drawdown threshold breached, halting run",
				zap.Float64("drawdown", drawdown),
				zap.Int("bars_processed", i+1),
			)

			halted = true

			break
		}
	}

	if err := b.closeRemainingPositions(executor, portfolio, lastBar, halted); err != nil {
		return nil, err
	}

	finalEquity := ledger.Equity(portfolio.MarketValue())
	metrics := CalculateMetrics(b.config, portfolio.Trades(), ledger.EquityCurve(), ledger.DrawdownCurve(), finalEquity, halted)

	if err := b.state.RecordOrders(executor.Orders()); err != nil {
		return nil, err
	}

	if err := b.state.RecordTrades(portfolio.Trades()); err != nil {
		return nil, err
	}

	if b.resultsFolder != "" {
		if err := b.writeResults(metrics); err != nil {
			return nil, err
		}
	}

	b.log.Info("Backtest run finished",
		zap.Float64("final_equity", finalEquity),
		zap.Int("total_trades", metrics.TotalTrades),
		zap.Bool("halted", halted),
	)

	return &engine.BacktestResult{
		Metrics:       metrics,
		Orders:        executor.Orders(),
		Trades:        portfolio.Trades(),
		EquityCurve:   ledger.EquityCurve(),
		DrawdownCurve: ledger.DrawdownCurve(),
	}, nil
}

// materializeBars loads the requested series into memory. An interval request
// goes through the aggregating range query; otherwise the source is streamed
// in native resolution.
func (b *BacktestEngineV1) materializeBars(request engine.RunRequest) ([]types.MarketData, error) {
	if request.Interval.IsSome() {
		start := request.Start.TakeOr(time.Time{})
		end := request.End.TakeOr(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))

		if request.Start.IsSome() && request.End.IsSome() && !end.After(start) {
			return nil, errors.Newf(errors.ErrCodeInvalidTimeRange, "end %s is not after start %s", end, start)
		}

		bars, err := b.datasource.GetRange(start, end, request.Interval)
		if err != nil {
			return nil, err
		}

		return filterSymbol(bars, request.Symbol), nil
	}

	var bars []types.MarketData

	for data, err := range b.datasource.ReadAll(request.Start, request.End) {
		if err != nil {
			return nil, err
		}

		if request.Symbol == "" || data.Symbol == request.Symbol {
			bars = append(bars, data)
		}
	}

	return bars, nil
}

func filterSymbol(bars []types.MarketData, symbol string) []types.MarketData {
	if symbol == "" {
		return bars
	}

	filtered := make([]types.MarketData, 0, len(bars))

	for _, bar := range bars {
		if bar.Symbol == symbol {
			filtered = append(filtered, bar)
		}
	}

	return filtered
}

// closeRemainingPositions liquidates every open position at the last
// processed bar so the run ends flat and realized.
func (b *BacktestEngineV1) closeRemainingPositions(
	executor *OrderExecutor,
	portfolio *Portfolio,
	lastBar types.MarketData,
	halted bool,
) error {
	positions := portfolio.Positions()
	if len(positions) == 0 {
		return nil
	}

	reason := types.OrderReasonEndOfData
	if halted {
		reason = types.OrderReasonDrawdownHalt
	}

	executor.UpdateCurrentMarketData(lastBar)

	for _, position := range positions {
		intent := types.ExecuteOrder{
			Symbol:     position.Symbol,
			Side:       types.OppositeSide(position.PositionType),
			Quantity:   position.Quantity,
			LimitPrice: optional.None[float64](),
			Reason: types.Reason{
				Reason:  reason,
				Message: "position closed at run end",
			},
		}

		if _, _, err := executor.PlaceOrder(intent); err != nil {
			return err
		}
	}

	return nil
}

func (b *BacktestEngineV1) commissionFee() commission_fee.CommissionFee {
	if b.config.CommissionRate == 0 {
		return commission_fee.NewZeroCommissionFee()
	}

	return commission_fee.NewRateCommissionFee(b.config.CommissionRate)
}

// writeResults exports the run artifacts: Parquet order/trade logs, the
// metrics YAML, and the per-symbol stats YAML.
func (b *BacktestEngineV1) writeResults(metrics types.BacktestMetrics) error {
	if err := b.state.Write(b.resultsFolder); err != nil {
		return err
	}

	if err := types.WriteMetrics(filepath.Join(b.resultsFolder, "metrics.yaml"), metrics); err != nil {
		return err
	}

	stats, err := b.state.GetStats()
	if err != nil {
		return err
	}

	return types.WriteTradeStats(filepath.Join(b.resultsFolder, "stats.yaml"), stats)
}

// runContext is the read-only engine view handed to the strategy callback.
type runContext struct {
	history   []types.MarketData
	portfolio *Portfolio
	ledger    *Ledger
}

// History implements engine.StrategyContext. The current bar is appended
// after the callback returns, so the strategy never observes it here.
func (r *runContext) History() []types.MarketData {
	return r.history
}

// Position implements engine.StrategyContext.
func (r *runContext) Position(symbol string) optional.Option[types.Position] {
	return r.portfolio.Position(symbol)
}

// Cash implements engine.StrategyContext.
func (r *runContext) Cash() float64 {
	return r.ledger.Cash()
}

// Equity implements engine.StrategyContext.
func (r *runContext) Equity() float64 {
	return r.ledger.Equity(r.portfolio.MarketValue())
}
