package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-signals/internal/feature"
	"github.com/rxtech-lab/argo-signals/internal/indicator"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"go.uber.org/zap"
)

type BacktestEngineV1 struct {
	config        BacktestEngineV1Config
	initialized   bool
	resultsFolder string
	dataPath      string
	log           *logger.Logger
	registry      *indicator.Registry
	state         *BacktestState
	datasource    datasource.DataSource
}

// NewBacktestEngineV1 creates an engine. A nil logger discards all logs.
func NewBacktestEngineV1(log *logger.Logger) *BacktestEngineV1 {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BacktestEngineV1{
		config:        EmptyConfig(),
		initialized:   false,
		resultsFolder: "",
		dataPath:      "",
		log:           log,
		registry:      indicator.NewDefaultRegistry(),
		state:         nil,
		datasource:    nil,
	}
}

var _ engine.Engine = (*BacktestEngineV1)(nil)

// Initialize parses and validates the YAML config. Missing keys take their defaults.
func (b *BacktestEngineV1) Initialize(config []byte) error {
	parsed, err := ParseConfig(config)
	if err != nil {
		return err
	}

	return b.InitializeWithConfig(parsed)
}

// InitializeWithConfig sets an already built config after validating it.
func (b *BacktestEngineV1) InitializeWithConfig(config BacktestEngineV1Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	b.config = config

	if b.state == nil {
		state, err := NewBacktestState(b.log)
		if err != nil {
			return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create backtest state", err)
		}

		if err := state.Initialize(); err != nil {
			return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to initialize state", err)
		}

		b.state = state
	}

	b.initialized = true

	b.log.Debug("Backtest engine initialized",
		zap.Float64("initial_capital", config.InitialCapital),
		zap.String("broker", string(config.Broker)),
		zap.String("entry_mode", config.EntryMode),
	)

	return nil
}

// Config returns the active configuration.
func (b *BacktestEngineV1) Config() BacktestEngineV1Config {
	return b.config
}

func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder
	b.log.Debug("Results folder set",
		zap.String("folder", folder),
	)

	return nil
}

// SetDataPath records the market data file for the stats report. The data source
// is expected to be initialized with the same path.
func (b *BacktestEngineV1) SetDataPath(path string) {
	b.dataPath = path
}

func (b *BacktestEngineV1) SetDataSource(datasource datasource.DataSource) error {
	b.datasource = datasource

	return nil
}

func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}

	return schema, nil
}

// Run simulates every date of the data source within the resolved range.
func (b *BacktestEngineV1) Run(
	ctx context.Context,
	start optional.Option[time.Time],
	end optional.Option[time.Time],
	callbacks engine.LifecycleCallbacks,
) (result engine.Result, err error) {
	if callbacks.OnBacktestEnd != nil {
		defer func() {
			(*callbacks.OnBacktestEnd)(err)
		}()
	}

	if err := b.preRunCheck(); err != nil {
		return engine.Result{}, err
	}

	start = firstSome(start, b.config.StartDate)
	end = firstSome(end, b.config.EndDate)

	panel, err := b.loadPanel(ctx, start, end)
	if err != nil {
		return engine.Result{}, err
	}

	if err := b.state.Cleanup(); err != nil {
		return engine.Result{}, errors.Wrap(errors.ErrCodeStorageFailed, "failed to reset backtest state", err)
	}

	runID := b.state.RunID()
	total := panel.Len()

	b.log.Info("Starting backtest",
		zap.String("run_id", runID),
		zap.Int("days", total),
	)

	if callbacks.OnBacktestStart != nil {
		if err := (*callbacks.OnBacktestStart)(runID, total); err != nil {
			return engine.Result{}, fmt.Errorf("backtest start callback failed: %w", err)
		}
	}

	sim := newSimulationContext(b.config, panel)
	trades := make([]types.Trade, 0)

	for idx := range total {
		if err := ctx.Err(); err != nil {
			return engine.Result{}, err
		}

		report := sim.step(idx)

		trades = append(trades, report.Trades...)

		for _, trade := range report.Trades {
			if err := b.state.RecordTrade(trade); err != nil {
				return engine.Result{}, err
			}

			if callbacks.OnTrade != nil {
				if err := (*callbacks.OnTrade)(trade); err != nil {
					return engine.Result{}, fmt.Errorf("trade callback failed: %w", err)
				}
			}
		}

		if err := b.state.RecordDay(report.Date, report.Phase, sim.WorkingCapital(), report.OpenPositions); err != nil {
			return engine.Result{}, err
		}

		b.log.Debug("Processed day",
			zap.Time("date", report.Date),
			zap.String("phase", string(report.Phase)),
			zap.Int("trades", len(report.Trades)),
			zap.Int("entries", report.Entries),
			zap.Int("open_positions", report.OpenPositions),
		)

		if callbacks.OnProcessDay != nil {
			if err := (*callbacks.OnProcessDay)(idx+1, total); err != nil {
				return engine.Result{}, fmt.Errorf("process day callback failed: %w", err)
			}
		}
	}

	return b.collectResult(panel, sim, trades)
}

func (b *BacktestEngineV1) preRunCheck() error {
	if !b.initialized {
		return errors.New(errors.ErrCodeBacktestConfigError, "engine is not initialized")
	}

	if b.datasource == nil {
		return errors.New(errors.ErrCodeBacktestNoDatasource, "no data source set")
	}

	if b.state == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "backtest state is nil")
	}

	return nil
}

// loadPanel reads everything up to end so indicators warm up on the history before
// start, prepares the features, then cuts the simulated window.
func (b *BacktestEngineV1) loadPanel(
	ctx context.Context,
	start optional.Option[time.Time],
	end optional.Option[time.Time],
) (*feature.Panel, error) {
	readEnd := optional.None[time.Time]()
	if end.IsSome() {
		// bars later on the end date still belong to the window
		readEnd = optional.Some(types.NormalizeDate(end.Unwrap()).AddDate(0, 0, 1).Add(-time.Nanosecond))
	}

	bars, err := b.datasource.ReadBars(optional.None[time.Time](), readEnd, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to read market data", err)
	}

	frame, err := feature.FromBars(bars)
	if err != nil {
		return nil, err
	}

	prepared, err := feature.NewPreparerWithRegistry(b.config.FeatureConfig(), b.registry).Prepare(ctx, frame)
	if err != nil {
		return nil, err
	}

	var startTime, endTime time.Time
	if start.IsSome() {
		startTime = start.Unwrap()
	}

	if end.IsSome() {
		endTime = end.Unwrap()
	}

	return feature.NewPanel(prepared.Filter(startTime, endTime)), nil
}

func (b *BacktestEngineV1) collectResult(panel *feature.Panel, sim *simulationContext, trades []types.Trade) (engine.Result, error) {
	stats, err := b.state.Stats()
	if err != nil {
		return engine.Result{}, err
	}

	dates := panel.Dates()
	if len(dates) > 0 {
		stats.StartDate = dates[0]
		stats.EndDate = dates[len(dates)-1]
	}

	stats.InitialCapital = b.config.InitialCapital
	stats.FinalCapital = sim.WorkingCapital() + sim.PendingCash()
	stats.OpenPositions = len(sim.Positions())
	stats.DataPath = b.dataPath

	if b.resultsFolder != "" {
		if err := b.writeResults(&stats); err != nil {
			return engine.Result{}, err
		}
	}

	b.log.Info("Backtest finished",
		zap.String("run_id", stats.ID),
		zap.Int("trades", stats.TradeResult.NumberOfTrades),
		zap.Float64("win_rate", stats.TradeResult.WinRate),
		zap.Float64("realized_pnl", stats.TradePnl.RealizedPnL),
	)

	return engine.Result{Trades: trades, Stats: stats}, nil
}

func (b *BacktestEngineV1) writeResults(stats *types.BacktestStats) error {
	folder := getResultFolder(b.resultsFolder, b.dataPath, b.config)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create results folder", err)
	}

	tradesPath, err := b.state.Write(folder)
	if err != nil {
		return err
	}

	stats.TradesFilePath = tradesPath

	if err := types.WriteBacktestStats(statsPath(folder), *stats); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write stats", err)
	}

	return nil
}

// Close releases the ledger.
func (b *BacktestEngineV1) Close() error {
	if b.state == nil {
		return nil
	}

	return b.state.Close()
}

func firstSome[T any](options ...optional.Option[T]) optional.Option[T] {
	for _, o := range options {
		if o.IsSome() {
			return o
		}
	}

	return optional.None[T]()
}
