package engine

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"go.uber.org/zap"
)

// BacktestState persists the finished run's order and trade logs in an
// in-memory DuckDB database so they can be aggregated with SQL and exported
// to Parquet.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

func NewBacktestState(logger *logger.Logger) *BacktestState {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return nil
	}

	return &BacktestState{
		logger: logger,
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Initialize creates the orders and trades tables.
func (b *BacktestState) Initialize() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE,
			requested_price DOUBLE,
			filled_price DOUBLE,
			commission DOUBLE,
			status TEXT,
			timestamp TIMESTAMP,
			reason TEXT,
			message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			symbol TEXT,
			position_type TEXT,
			entry_timestamp TIMESTAMP,
			exit_timestamp TIMESTAMP,
			entry_price DOUBLE,
			exit_price DOUBLE,
			quantity DOUBLE,
			pnl DOUBLE,
			pnl_percent DOUBLE,
			commission DOUBLE,
			duration_seconds DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	return nil
}

// RecordOrders inserts the run's order log, filled and rejected alike.
func (b *BacktestState) RecordOrders(orders []types.Order) error {
	for _, order := range orders {
		insertQuery := b.sq.
			Insert("orders").
			Columns(
				"order_id", "symbol", "side", "quantity", "requested_price",
				"filled_price", "commission", "status", "timestamp", "reason", "message",
			).
			Values(
				order.OrderID, order.Symbol, order.Side, order.Quantity,
				nullableFloat(order.RequestedPrice), order.FilledPrice, order.Commission,
				order.Status, order.Timestamp, order.Reason.Reason, order.Reason.Message,
			).
			RunWith(b.db)

		if _, err := insertQuery.Exec(); err != nil {
			return fmt.Errorf("failed to insert order %s: %w", order.OrderID, err)
		}
	}

	return nil
}

// RecordTrades inserts the run's closed-trade log.
func (b *BacktestState) RecordTrades(trades []types.Trade) error {
	for _, trade := range trades {
		insertQuery := b.sq.
			Insert("trades").
			Columns(
				"trade_id", "symbol", "position_type", "entry_timestamp", "exit_timestamp",
				"entry_price", "exit_price", "quantity", "pnl", "pnl_percent",
				"commission", "duration_seconds",
			).
			Values(
				trade.TradeID, trade.Symbol, trade.PositionType, trade.EntryTimestamp,
				trade.ExitTimestamp, trade.EntryPrice, trade.ExitPrice, trade.Quantity,
				trade.PnL, trade.PnLPercent, trade.Commission, trade.Duration.Seconds(),
			).
			RunWith(b.db)

		if _, err := insertQuery.Exec(); err != nil {
			return fmt.Errorf("failed to insert trade %s: %w", trade.TradeID, err)
		}
	}

	return nil
}

// GetAllOrders returns all recorded orders ordered by execution time.
func (b *BacktestState) GetAllOrders() ([]types.Order, error) {
	selectQuery := b.sq.
		Select(
			"order_id", "symbol", "side", "quantity", "requested_price",
			"filled_price", "commission", "status", "timestamp", "reason", "message",
		).
		From("orders").
		OrderBy("timestamp ASC").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var order types.Order
		var requestedPrice sql.NullFloat64
		err := rows.Scan(
			&order.OrderID,
			&order.Symbol,
			&order.Side,
			&order.Quantity,
			&requestedPrice,
			&order.FilledPrice,
			&order.Commission,
			&order.Status,
			&order.Timestamp,
			&order.Reason.Reason,
			&order.Reason.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		if requestedPrice.Valid {
			order.RequestedPrice = optional.Some(requestedPrice.Float64)
		} else {
			order.RequestedPrice = optional.None[float64]()
		}

		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// GetAllTrades returns all recorded trades ordered by exit time.
func (b *BacktestState) GetAllTrades() ([]types.Trade, error) {
	selectQuery := b.sq.
		Select(
			"trade_id", "symbol", "position_type", "entry_timestamp", "exit_timestamp",
			"entry_price", "exit_price", "quantity", "pnl", "pnl_percent",
			"commission", "duration_seconds",
		).
		From("trades").
		OrderBy("exit_timestamp ASC").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var trade types.Trade
		var durationSeconds float64
		err := rows.Scan(
			&trade.TradeID,
			&trade.Symbol,
			&trade.PositionType,
			&trade.EntryTimestamp,
			&trade.ExitTimestamp,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Quantity,
			&trade.PnL,
			&trade.PnLPercent,
			&trade.Commission,
			&durationSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.Duration = time.Duration(durationSeconds * float64(time.Second))
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// GetOrderById returns a recorded order by its id.
func (b *BacktestState) GetOrderById(orderID string) (optional.Option[types.Order], error) {
	query := b.sq.
		Select(
			"order_id", "symbol", "side", "quantity", "requested_price",
			"filled_price", "commission", "status", "timestamp", "reason", "message",
		).
		From("orders").
		Where(squirrel.Eq{"order_id": orderID}).
		RunWith(b.db)

	var order types.Order
	var requestedPrice sql.NullFloat64
	err := query.QueryRow().Scan(
		&order.OrderID,
		&order.Symbol,
		&order.Side,
		&order.Quantity,
		&requestedPrice,
		&order.FilledPrice,
		&order.Commission,
		&order.Status,
		&order.Timestamp,
		&order.Reason.Reason,
		&order.Reason.Message,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return optional.None[types.Order](), nil
		}

		return optional.None[types.Order](), fmt.Errorf("failed to get order by id: %w", err)
	}

	if requestedPrice.Valid {
		order.RequestedPrice = optional.Some(requestedPrice.Float64)
	} else {
		order.RequestedPrice = optional.None[float64]()
	}

	return optional.Some(order), nil
}

// calculateTradeResult calculates the trade counters for a symbol.
func (b *BacktestState) calculateTradeResult(symbol string) (types.TradeResult, error) {
	// Using raw SQL for the CTE - Squirrel doesn't natively support this case
	query := `
		WITH trade_stats AS (
			SELECT
				COUNT(*) as total_trades,
				SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END) as winning_trades,
				SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END) as losing_trades
			FROM trades
			WHERE symbol = ?
		)
		SELECT
			total_trades,
			COALESCE(winning_trades, 0),
			COALESCE(losing_trades, 0),
			CASE WHEN total_trades > 0 THEN CAST(COALESCE(winning_trades, 0) AS DOUBLE) / total_trades ELSE 0 END as win_rate
		FROM trade_stats
	`

	var result types.TradeResult
	err := b.db.QueryRow(query, symbol).Scan(
		&result.NumberOfTrades,
		&result.NumberOfWinningTrades,
		&result.NumberOfLosingTrades,
		&result.WinRate,
	)
	if err != nil {
		return types.TradeResult{}, fmt.Errorf("failed to calculate trade result: %w", err)
	}

	return result, nil
}

// calculateTradeHoldingTime calculates the holding time statistics for a symbol.
func (b *BacktestState) calculateTradeHoldingTime(symbol string) (types.TradeHoldingTime, error) {
	query := b.sq.
		Select(
			"COALESCE(MIN(duration_seconds), 0)",
			"COALESCE(MAX(duration_seconds), 0)",
			"COALESCE(AVG(duration_seconds), 0)",
		).
		From("trades").
		Where(squirrel.Eq{"symbol": symbol}).
		RunWith(b.db)

	var minDuration, maxDuration, avgDuration float64
	err := query.QueryRow().Scan(&minDuration, &maxDuration, &avgDuration)
	if err != nil {
		return types.TradeHoldingTime{}, fmt.Errorf("failed to calculate holding time: %w", err)
	}

	return types.TradeHoldingTime{
		Min: int(math.Round(minDuration)),
		Max: int(math.Round(maxDuration)),
		Avg: int(math.Round(avgDuration)),
	}, nil
}

// calculateTradePnl calculates the realized pnl aggregates for a symbol.
func (b *BacktestState) calculateTradePnl(symbol string) (types.TradePnl, error) {
	query := b.sq.
		Select(
			"COALESCE(SUM(pnl), 0) as realized_pnl",
			"CASE WHEN COALESCE(MIN(pnl), 0) < 0 THEN COALESCE(MIN(pnl), 0) ELSE 0 END as maximum_loss",
			"CASE WHEN COALESCE(MAX(pnl), 0) > 0 THEN COALESCE(MAX(pnl), 0) ELSE 0 END as maximum_profit",
		).
		From("trades").
		Where(squirrel.Eq{"symbol": symbol}).
		RunWith(b.db)

	var pnl types.TradePnl
	err := query.QueryRow().Scan(&pnl.RealizedPnL, &pnl.MaximumLoss, &pnl.MaximumProfit)
	if err != nil {
		return types.TradePnl{}, fmt.Errorf("failed to calculate trade pnl: %w", err)
	}

	return pnl, nil
}

// calculateTotalFees sums the commission across entry orders and closed
// trades for a symbol.
func (b *BacktestState) calculateTotalFees(symbol string) (float64, error) {
	query := b.sq.
		Select("COALESCE(SUM(commission), 0)").
		From("orders").
		Where(squirrel.Eq{"symbol": symbol, "status": types.OrderStatusFilled}).
		RunWith(b.db)

	var totalFees float64
	err := query.QueryRow().Scan(&totalFees)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total fees: %w", err)
	}

	return totalFees, nil
}

// GetStats returns the per-symbol statistics of the recorded trades.
func (b *BacktestState) GetStats() ([]types.TradeStats, error) {
	selectQuery := b.sq.
		Select("DISTINCT symbol").
		From("trades").
		OrderBy("symbol").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to get unique symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}

		symbols = append(symbols, symbol)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	var stats []types.TradeStats
	for _, symbol := range symbols {
		tradeResult, err := b.calculateTradeResult(symbol)
		if err != nil {
			return nil, err
		}

		holdingTime, err := b.calculateTradeHoldingTime(symbol)
		if err != nil {
			return nil, err
		}

		tradePnl, err := b.calculateTradePnl(symbol)
		if err != nil {
			return nil, err
		}

		totalFees, err := b.calculateTotalFees(symbol)
		if err != nil {
			return nil, err
		}

		stats = append(stats, types.TradeStats{
			Symbol:           symbol,
			TradeResult:      tradeResult,
			TotalFees:        totalFees,
			TradeHoldingTime: holdingTime,
			TradePnl:         tradePnl,
		})
	}

	return stats, nil
}

// Write saves the recorded orders and trades to Parquet files in the
// specified directory.
func (b *BacktestState) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Raw SQL - Squirrel doesn't support COPY
	tradesPath := filepath.Join(path, "trades.parquet")
	_, err := b.db.Exec(fmt.Sprintf(`COPY trades TO '%s' (FORMAT PARQUET)`, tradesPath))
	if err != nil {
		return fmt.Errorf("failed to export trades to Parquet: %w", err)
	}

	ordersPath := filepath.Join(path, "orders.parquet")
	_, err = b.db.Exec(fmt.Sprintf(`COPY orders TO '%s' (FORMAT PARQUET)`, ordersPath))
	if err != nil {
		return fmt.Errorf("failed to export orders to Parquet: %w", err)
	}

	b.logger.Info("Successfully exported backtest results to Parquet files",
		zap.String("trades", tradesPath),
		zap.String("orders", ordersPath),
	)

	return nil
}

// Cleanup drops and recreates the tables so the state can be reused for
// another run.
func (b *BacktestState) Cleanup() error {
	_, err := b.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS orders;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	return b.Initialize()
}

// Close releases the underlying database.
func (b *BacktestState) Close() error {
	if b.db == nil {
		return nil
	}

	return b.db.Close()
}

func nullableFloat(value optional.Option[float64]) interface{} {
	if value.IsNone() {
		return nil
	}

	return value.Unwrap()
}
