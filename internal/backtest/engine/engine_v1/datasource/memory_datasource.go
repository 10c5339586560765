package datasource

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// MemoryDataSource serves a literal bar sequence from memory. It is the
// deterministic fixture source for tests and the embedding API for callers
// that already hold their bars.
type MemoryDataSource struct {
	// bars in chronological order
	bars []types.MarketData

	// timeIndex[symbol][timestamp] = index into bars
	timeIndex map[string]map[int64]int

	mu sync.RWMutex
}

// NewMemoryDataSource creates a data source over the given bars. The bars are
// copied and sorted chronologically.
func NewMemoryDataSource(bars []types.MarketData) *MemoryDataSource {
	ds := &MemoryDataSource{
		bars:      nil,
		timeIndex: make(map[string]map[int64]int),
		mu:        sync.RWMutex{},
	}
	ds.load(bars)

	return ds
}

// NewMemoryDataSourceFromCSV loads bars from a csv file with the standard
// time/symbol/open/high/low/close/volume columns.
func NewMemoryDataSourceFromCSV(path string) (*MemoryDataSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to open csv file %s", path)
	}
	defer file.Close()

	var bars []*types.MarketData
	if err := gocsv.UnmarshalFile(file, &bars); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to parse csv file %s", path)
	}

	values := make([]types.MarketData, 0, len(bars))
	for _, bar := range bars {
		values = append(values, *bar)
	}

	return NewMemoryDataSource(values), nil
}

func (ds *MemoryDataSource) load(bars []types.MarketData) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	sorted := make([]types.MarketData, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	ds.bars = sorted
	ds.timeIndex = make(map[string]map[int64]int)

	for i, bar := range sorted {
		if _, ok := ds.timeIndex[bar.Symbol]; !ok {
			ds.timeIndex[bar.Symbol] = make(map[int64]int)
		}

		ds.timeIndex[bar.Symbol][bar.Time.UnixNano()] = i
	}
}

// Initialize implements DataSource. The path is ignored; the bars were
// supplied at construction.
func (ds *MemoryDataSource) Initialize(_ string) error {
	return nil
}

// ReadAll implements DataSource.
func (ds *MemoryDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketData, error) bool) {
	return func(yield func(types.MarketData, error) bool) {
		ds.mu.RLock()
		bars := ds.bars
		ds.mu.RUnlock()

		for _, bar := range bars {
			if !inRange(bar.Time, start, end) {
				continue
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

// GetRange implements DataSource. Interval aggregation is not supported for
// literal fixtures; the stored bars are returned as-is.
func (ds *MemoryDataSource) GetRange(start time.Time, end time.Time, _ optional.Option[Interval]) ([]types.MarketData, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var result []types.MarketData

	for _, bar := range ds.bars {
		if bar.Time.Before(start) || bar.Time.After(end) {
			continue
		}

		result = append(result, bar)
	}

	return result, nil
}

// GetBarAt implements DataSource.
func (ds *MemoryDataSource) GetBarAt(symbol string, t time.Time) (optional.Option[types.MarketData], error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	index, ok := ds.timeIndex[symbol]
	if !ok {
		return optional.None[types.MarketData](), nil
	}

	i, ok := index[t.UnixNano()]
	if !ok {
		return optional.None[types.MarketData](), nil
	}

	return optional.Some(ds.bars[i]), nil
}

// ReadLastData implements DataSource.
func (ds *MemoryDataSource) ReadLastData(symbol string) (types.MarketData, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	for i := len(ds.bars) - 1; i >= 0; i-- {
		if ds.bars[i].Symbol == symbol {
			return ds.bars[i], nil
		}
	}

	return types.MarketData{}, errors.Newf(errors.ErrCodeNoDataFound, "no data found for symbol %s", symbol)
}

// Count implements DataSource.
func (ds *MemoryDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	count := 0

	for _, bar := range ds.bars {
		if inRange(bar.Time, start, end) {
			count++
		}
	}

	return count, nil
}

// Close implements DataSource.
func (ds *MemoryDataSource) Close() error {
	return nil
}

func inRange(t time.Time, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && t.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && t.After(end.Unwrap()) {
		return false
	}

	return true
}
