// Package pipeline runs the "generate and send alerts" job: backtest the latest
// window, turn its trades into alerts, fall back to the breakout screen, dispatch.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/alert"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine"
	engine_v1 "github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-signals/internal/feature"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/screener"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"go.uber.org/zap"
)

// Job modes.
const (
	ModeIntraday = "INTRADAY"
	ModeEOD      = "EOD"
)

// DefaultLookbackDays is the simulated window before the latest date.
const DefaultLookbackDays = 60

// Dispatcher delivers alerts and reports how many went out.
type Dispatcher interface {
	Dispatch(ctx context.Context, alerts []types.Alert) (int, error)
}

type Options struct {
	DataPath     string
	Engine       engine_v1.BacktestEngineV1Config
	Location     *time.Location
	LookbackDays int
	// Tickers restricts the breakout fallback. Empty means every ticker.
	Tickers   []string
	ForceTest bool
}

// Report describes one run.
type Report struct {
	Mode     string
	LastDate time.Time
	Trades   int
	// Fallback is set when the alerts came from the breakout screen.
	Fallback bool
	Alerts   []types.Alert
	Keys     []string
	Sent     int
}

type Runner struct {
	opts       Options
	dispatcher Dispatcher
	log        *logger.Logger
	openData   func(path string) (datasource.DataSource, error)
	now        func() time.Time
	// one run at a time
	mu sync.Mutex
}

func NewRunner(opts Options, dispatcher Dispatcher, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if opts.Location == nil {
		opts.Location = time.UTC
	}

	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}

	r := &Runner{
		opts:       opts,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}

	r.openData = func(path string) (datasource.DataSource, error) {
		ds, err := datasource.NewDataSource(":memory:", r.log)
		if err != nil {
			return nil, err
		}

		if err := ds.Initialize(path); err != nil {
			ds.Close()

			return nil, err
		}

		return ds, nil
	}

	return r
}

// WithDataSource replaces how the market data is opened for each run.
func (r *Runner) WithDataSource(open func(path string) (datasource.DataSource, error)) *Runner {
	r.openData = open

	return r
}

// RunOnce executes one job. A run with no alerts is not an error.
func (r *Runner) RunOnce(ctx context.Context, mode string) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mode != ModeIntraday && mode != ModeEOD {
		return Report{}, errors.Newf(errors.ErrCodeInvalidParameter, "unknown run mode %q", mode)
	}

	report := Report{Mode: mode}

	ds, err := r.openData(r.opts.DataPath)
	if err != nil {
		return report, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open market data", err)
	}
	defer ds.Close()

	latest, err := ds.LatestTime()
	if err != nil {
		return report, errors.Wrap(errors.ErrCodeNoDataFound, "failed to find the latest date", err)
	}

	report.LastDate = types.NormalizeDate(latest)

	trades, err := r.backtest(ctx, ds, report.LastDate)
	if err != nil {
		return report, err
	}

	report.Trades = len(trades)
	alerts := alert.FromTrades(trades, report.LastDate)

	if len(alerts) == 0 {
		r.log.Info("No trade alerts for the latest date, falling back to the breakout screen",
			zap.Time("last_date", report.LastDate),
		)

		alerts, err = r.breakouts(ctx, ds)
		if err != nil {
			return report, err
		}

		report.Fallback = true
	}

	if r.opts.ForceTest {
		alerts = []types.Alert{alert.TestAlert(r.now().In(r.opts.Location))}
	}

	report.Alerts = alerts

	if len(alerts) == 0 {
		r.log.Info("No alerts generated", zap.String("mode", mode))

		return report, nil
	}

	today := r.now().In(r.opts.Location)
	for _, a := range alerts {
		report.Keys = append(report.Keys, alert.DedupeKey(today, a, mode))
	}

	r.log.Info("Alerts generated",
		zap.String("mode", mode),
		zap.Int("count", len(alerts)),
		zap.String("summary", alert.Summary(alerts)),
	)

	sent, err := r.dispatcher.Dispatch(ctx, alerts)
	report.Sent = sent

	if err != nil {
		return report, errors.Wrap(errors.ErrCodeNotifyFailed, "failed to dispatch alerts", err)
	}

	r.log.Info("Alerts dispatched",
		zap.String("mode", mode),
		zap.Int("sent", sent),
		zap.Int("skipped", len(alerts)-sent),
	)

	return report, nil
}

// backtest simulates [lastDate - lookback, lastDate] and returns the completed trades.
func (r *Runner) backtest(ctx context.Context, ds datasource.DataSource, lastDate time.Time) ([]types.Trade, error) {
	bt := engine_v1.NewBacktestEngineV1(r.log)
	defer bt.Close()

	if err := bt.InitializeWithConfig(r.opts.Engine); err != nil {
		return nil, err
	}

	if err := bt.SetDataSource(ds); err != nil {
		return nil, err
	}

	start := lastDate.AddDate(0, 0, -r.opts.LookbackDays)

	result, err := bt.Run(ctx, optional.Some(start), optional.Some(lastDate), engine.LifecycleCallbacks{})
	if err != nil {
		return nil, err
	}

	return result.Trades, nil
}

// breakouts screens the weekly Monday snapshot into a watchlist and fires on the
// latest bar of every watched ticker that breaks its five-day high.
func (r *Runner) breakouts(ctx context.Context, ds datasource.DataSource) ([]types.Alert, error) {
	bars, err := ds.ReadBars(optional.None[time.Time](), optional.None[time.Time](), r.opts.Tickers)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to read market data", err)
	}

	if len(bars) == 0 {
		return nil, nil
	}

	frame, err := feature.FromBars(bars)
	if err != nil {
		return nil, err
	}

	prepared, err := feature.Prepare(ctx, frame, r.opts.Engine.FeatureConfig())
	if err != nil {
		return nil, err
	}

	watchlist := screener.BaselineWatchlist(feature.WeeklySnapshot(prepared), screener.DefaultBaselineVolumeMA20)
	triggers := screener.BreakoutTriggers(feature.LatestRows(prepared), watchlist)

	r.log.Debug("Breakout screen",
		zap.Int("watchlist", len(watchlist)),
		zap.Int("triggers", len(triggers)),
	)

	return alert.FromBreakouts(triggers, r.opts.Location), nil
}
