package datasource

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"go.uber.org/zap"
)

type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDataSource creates a new DuckDB data source instance with the specified
// database path. Use ":memory:" for an in-process database. This is distinct
// from Initialize() which loads market data into the database.
func NewDataSource(path string, logger *logger.Logger) (DataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	return &DuckDBDataSource{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize implements DataSource. The path may point to a parquet or csv
// file holding one bar per row.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	// First drop the view if it exists
	_, err := d.db.Exec(`DROP VIEW IF EXISTS market_data;`)
	if err != nil {
		return fmt.Errorf("failed to drop existing view: %w", err)
	}

	// Create a view over the data file - raw SQL as Squirrel doesn't support
	// CREATE VIEW
	var query string

	switch {
	case strings.HasSuffix(path, ".csv"):
		query = fmt.Sprintf(`
			CREATE VIEW market_data AS
			SELECT * FROM read_csv_auto('%s');
		`, path)
	default:
		query = fmt.Sprintf(`
			CREATE VIEW market_data AS
			SELECT * FROM read_parquet('%s');
		`, path)
	}

	_, err = d.db.Exec(query)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to load data from %s", path)
	}

	return nil
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	var count int

	query := "SELECT COUNT(*) FROM market_data"

	conditions, params := timeRangeConditions(start, end)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	err := d.db.QueryRow(query, params...).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}

	return count, nil
}

// ReadAll implements DataSource with batch processing.
func (d *DuckDBDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketData, error) bool) {
	const batchSize = 1000

	return func(yield func(types.MarketData, error) bool) {
		query := `
			SELECT time, symbol, open, high, low, close, volume
			FROM market_data
		`

		conditions, params := timeRangeConditions(start, end)
		if len(conditions) > 0 {
			query += " WHERE " + strings.Join(conditions, " AND ")
		}

		query += " ORDER BY time ASC"

		stmt, err := d.db.Prepare(query)
		if err != nil {
			yield(types.MarketData{}, err)

			return
		}
		defer stmt.Close()

		rows, err := stmt.Query(params...)
		if err != nil {
			yield(types.MarketData{}, err)

			return
		}
		defer rows.Close()

		batch := make([]types.MarketData, 0, batchSize)

		for rows.Next() {
			marketData, err := scanMarketData(rows)
			if err != nil {
				yield(types.MarketData{}, err)

				return
			}

			batch = append(batch, marketData)

			if len(batch) >= batchSize {
				for _, data := range batch {
					if !yield(data, nil) {
						return
					}
				}

				batch = batch[:0]
			}
		}

		for _, data := range batch {
			if !yield(data, nil) {
				return
			}
		}
	}
}

// GetRange implements DataSource. When an interval is given, the raw bars are
// aggregated into time buckets of that length.
func (d *DuckDBDataSource) GetRange(start time.Time, end time.Time, interval optional.Option[Interval]) ([]types.MarketData, error) {
	var query string

	if interval.IsSome() {
		intervalMinutes, err := getIntervalMinutes(interval.Unwrap())
		if err != nil {
			return nil, err
		}

		// time_bucket aggregation with window functions - raw SQL since
		// Squirrel doesn't support either
		query = fmt.Sprintf(`
			WITH time_buckets AS MATERIALIZED (
				SELECT
					time_bucket(INTERVAL '%d minutes', time) as bucket_time,
					symbol,
					FIRST_VALUE(open) OVER (PARTITION BY time_bucket(INTERVAL '%d minutes', time), symbol ORDER BY time) as open,
					MAX(high) OVER (PARTITION BY time_bucket(INTERVAL '%d minutes', time), symbol) as high,
					MIN(low) OVER (PARTITION BY time_bucket(INTERVAL '%d minutes', time), symbol) as low,
					LAST_VALUE(close) OVER (PARTITION BY time_bucket(INTERVAL '%d minutes', time), symbol ORDER BY time ROWS BETWEEN UNBOUNDED PRECEDING AND UNBOUNDED FOLLOWING) as close,
					SUM(volume) OVER (PARTITION BY time_bucket(INTERVAL '%d minutes', time), symbol) as volume
				FROM market_data
				WHERE time >= $1 AND time <= $2
			)
			SELECT DISTINCT
				bucket_time as time,
				symbol,
				open,
				high,
				low,
				close,
				volume
			FROM time_buckets
			ORDER BY bucket_time ASC
		`, intervalMinutes, intervalMinutes, intervalMinutes, intervalMinutes, intervalMinutes, intervalMinutes)
	} else {
		query = `
			SELECT time, symbol, open, high, low, close, volume
			FROM market_data
			WHERE time >= $1 AND time <= $2
			ORDER BY time ASC
		`
	}

	stmt, err := d.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query market data: %w", err)
	}
	defer rows.Close()

	result := make([]types.MarketData, 0, 1000)

	for rows.Next() {
		marketData, err := scanMarketData(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, marketData)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// GetBarAt implements DataSource.
func (d *DuckDBDataSource) GetBarAt(symbol string, t time.Time) (optional.Option[types.MarketData], error) {
	query := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("market_data").
		Where(squirrel.Eq{"symbol": symbol, "time": t}).
		Limit(1).
		RunWith(d.db)

	row := query.QueryRow()

	marketData, err := scanMarketDataRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return optional.None[types.MarketData](), nil
		}

		return optional.None[types.MarketData](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bar", err)
	}

	return optional.Some(marketData), nil
}

// ReadLastData implements DataSource.
func (d *DuckDBDataSource) ReadLastData(symbol string) (types.MarketData, error) {
	query := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("market_data").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time DESC").
		Limit(1).
		RunWith(d.db)

	row := query.QueryRow()

	marketData, err := scanMarketDataRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.MarketData{}, errors.Newf(errors.ErrCodeNoDataFound, "no data found for symbol %s", symbol)
		}

		return types.MarketData{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query last data", err)
	}

	return marketData, nil
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	return d.db.Close()
}

func timeRangeConditions(start optional.Option[time.Time], end optional.Option[time.Time]) ([]string, []interface{}) {
	var conditions []string

	var params []interface{}

	paramCount := 0

	if start.IsSome() {
		paramCount++
		conditions = append(conditions, fmt.Sprintf("time >= $%d", paramCount))
		params = append(params, start.Unwrap())
	}

	if end.IsSome() {
		paramCount++
		conditions = append(conditions, fmt.Sprintf("time <= $%d", paramCount))
		params = append(params, end.Unwrap())
	}

	return conditions, params
}

func scanMarketData(rows *sql.Rows) (types.MarketData, error) {
	var (
		timestamp                      time.Time
		open, high, low, close, volume float64
		symbol                         string
	)

	if err := rows.Scan(&timestamp, &symbol, &open, &high, &low, &close, &volume); err != nil {
		return types.MarketData{}, err
	}

	return types.MarketData{
		Time:   timestamp,
		Symbol: symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}, nil
}

func scanMarketDataRow(row squirrel.RowScanner) (types.MarketData, error) {
	var (
		timestamp                      time.Time
		open, high, low, close, volume float64
		symbol                         string
	)

	if err := row.Scan(&timestamp, &symbol, &open, &high, &low, &close, &volume); err != nil {
		return types.MarketData{}, err
	}

	return types.MarketData{
		Time:   timestamp,
		Symbol: symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}, nil
}
