package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Column names with a fixed meaning in a market data file.
const (
	ColumnTime   = "time"
	ColumnTicker = "ticker"
	// ColumnSymbol is accepted in place of ticker.
	ColumnSymbol = "symbol"
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "volume"
)

// SQLResult represents a row of data from a SQL query
type SQLResult struct {
	Values map[string]interface{}
}

type DataSource interface {
	// Initialize loads the market data file (parquet or csv) at path
	Initialize(path string) error
	// ReadAll reads every bar in [start, end] ordered by time and yields it to the caller
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketBar, error) bool)
	// ReadBars collects ReadAll into a slice, optionally restricted to tickers
	ReadBars(start optional.Option[time.Time], end optional.Option[time.Time], tickers []string) ([]types.MarketBar, error)
	// LatestTime returns the greatest timestamp in the data source
	LatestTime() (time.Time, error)
	// Tickers returns the distinct tickers in ascending order
	Tickers() ([]string, error)
	// Columns returns the numeric columns carried by the bars, besides time and ticker
	Columns() []string
	// ExecuteSQL executes a raw SQL query and returns the results as SQLResult
	ExecuteSQL(query string, params ...interface{}) ([]SQLResult, error)
	// Count returns the number of rows in the data source
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close closes the data source and releases any resources
	Close() error
}
