package datasource

import (
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// InMemoryDataSource serves bars that are already loaded, for tests and for callers
// that fetched data themselves.
type InMemoryDataSource struct {
	bars    []types.MarketBar
	columns []string
	mu      sync.RWMutex
}

// NewInMemoryDataSource creates a data source over bars. The bars are copied and
// ordered by time then ticker.
func NewInMemoryDataSource(bars []types.MarketBar) *InMemoryDataSource {
	ds := &InMemoryDataSource{
		bars:    nil,
		columns: nil,
		mu:      sync.RWMutex{},
	}
	ds.load(bars)

	return ds
}

func (ds *InMemoryDataSource) load(bars []types.MarketBar) {
	sorted := make([]types.MarketBar, len(bars))
	copy(sorted, bars)

	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}

		return sorted[i].Ticker < sorted[j].Ticker
	})

	seen := map[string]struct{}{ColumnClose: {}, ColumnVolume: {}}

	for _, bar := range sorted {
		if bar.Open.IsSome() {
			seen[ColumnOpen] = struct{}{}
		}

		if bar.High.IsSome() {
			seen[ColumnHigh] = struct{}{}
		}

		if bar.Low.IsSome() {
			seen[ColumnLow] = struct{}{}
		}

		for name := range bar.Extras {
			seen[name] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}

	sort.Strings(columns)

	ds.bars = sorted
	ds.columns = columns
}

// Initialize implements DataSource. Bars are supplied at construction, so the path is ignored.
func (ds *InMemoryDataSource) Initialize(_ string) error {
	return nil
}

// ReadAll implements DataSource.
func (ds *InMemoryDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketBar, error) bool) {
	return func(yield func(types.MarketBar, error) bool) {
		ds.mu.RLock()
		defer ds.mu.RUnlock()

		for _, bar := range ds.bars {
			if !inRange(bar.Time, start, end) {
				continue
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

// ReadBars implements DataSource.
func (ds *InMemoryDataSource) ReadBars(start optional.Option[time.Time], end optional.Option[time.Time], tickers []string) ([]types.MarketBar, error) {
	out := make([]types.MarketBar, 0, len(ds.bars))

	for bar, err := range ds.ReadAll(start, end) {
		if err != nil {
			return nil, err
		}

		out = append(out, bar)
	}

	return filterTickers(out, tickers), nil
}

// LatestTime implements DataSource.
func (ds *InMemoryDataSource) LatestTime() (time.Time, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if len(ds.bars) == 0 {
		return time.Time{}, errors.New(errors.ErrCodeNoDataFound, "market data is empty")
	}

	return ds.bars[len(ds.bars)-1].Time, nil
}

// Tickers implements DataSource.
func (ds *InMemoryDataSource) Tickers() ([]string, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	seen := make(map[string]struct{})
	tickers := make([]string, 0)

	for _, bar := range ds.bars {
		if _, ok := seen[bar.Ticker]; ok {
			continue
		}

		seen[bar.Ticker] = struct{}{}
		tickers = append(tickers, bar.Ticker)
	}

	sort.Strings(tickers)

	return tickers, nil
}

// Columns implements DataSource.
func (ds *InMemoryDataSource) Columns() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	out := make([]string, len(ds.columns))
	copy(out, ds.columns)

	return out
}

// ExecuteSQL implements DataSource. SQL is not available on in-memory bars.
func (ds *InMemoryDataSource) ExecuteSQL(_ string, _ ...interface{}) ([]SQLResult, error) {
	return nil, errors.New(errors.ErrCodeQueryFailed, "in-memory data source does not support SQL")
}

// Count implements DataSource.
func (ds *InMemoryDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	count := 0

	for range ds.ReadAll(start, end) {
		count++
	}

	return count, nil
}

// Close implements DataSource.
func (ds *InMemoryDataSource) Close() error {
	return nil
}
