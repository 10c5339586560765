package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
)

// DataSource is the price series provider boundary. Implementations must
// yield bars in strictly increasing timestamp order.
type DataSource interface {
	// Initialize initializes the data source with the given data path
	// (parquet or csv)
	Initialize(path string) error
	// ReadAll reads all the data from the data source and yields it to the caller
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketData, error) bool)
	// GetRange reads a range of data from the data source, optionally
	// aggregated to the given interval
	GetRange(start time.Time, end time.Time, interval optional.Option[Interval]) ([]types.MarketData, error)
	// GetBarAt returns the bar for a symbol at an exact timestamp, or None if
	// no bar is resolvable at that timestamp
	GetBarAt(symbol string, t time.Time) (optional.Option[types.MarketData], error)
	// ReadLastData reads the last data from the data source for a specific symbol
	ReadLastData(symbol string) (types.MarketData, error)
	// Count returns the number of rows in the data source
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close closes the data source and releases any resources
	Close() error
}
