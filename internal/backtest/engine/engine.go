package engine

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Lifecycle callback types for backtest phases
// All callbacks with error return can abort execution if they return an error

// OnBacktestStartCallback is called once the simulated dates are known, before the first day.
// runID is a unique identifier for this run.
type OnBacktestStartCallback func(runID string, totalDays int) error

// OnBacktestEndCallback is called when the backtest completes (always called via defer).
type OnBacktestEndCallback func(err error)

// OnProcessDayCallback is called after each simulated date.
type OnProcessDayCallback func(current int, total int) error

// OnTradeCallback is called for every completed trade, in emission order.
type OnTradeCallback func(trade types.Trade) error

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnBacktestStart *OnBacktestStartCallback
	OnBacktestEnd   *OnBacktestEndCallback
	OnProcessDay    *OnProcessDayCallback
	OnTrade         *OnTradeCallback
}

// Result is the outcome of a single run.
type Result struct {
	Trades []types.Trade
	Stats  types.BacktestStats
}

type Engine interface {
	// Initialize the engine with the given YAML configuration.
	Initialize(config []byte) error
	// SetDataSource sets the data source for the engine.
	SetDataSource(dataSource datasource.DataSource) error
	// SetResultsFolder sets the output directory for the trades parquet and stats file.
	// Nothing is written when the folder is empty.
	SetResultsFolder(folder string) error
	// Run simulates every date in [start, end]. Empty bounds fall back to the configured
	// start_date / end_date, then to the full data range.
	// The context can be used to cancel the backtest between days.
	Run(ctx context.Context, start optional.Option[time.Time], end optional.Option[time.Time], callbacks LifecycleCallbacks) (Result, error)
	// GetConfigSchema returns the JSON schema of the engine configuration
	GetConfigSchema() (string, error)
}
