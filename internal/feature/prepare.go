package feature

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/indicator"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Market columns broadcast to every ticker row.
const (
	ColMarketClose     = types.FieldMarketClose
	ColMarketHigh      = types.FieldMarketHigh
	ColMarketLow       = types.FieldMarketLow
	ColMarketMA50      = "market_MA50"
	ColMarketMA200     = "market_MA200"
	ColMarketRSI       = "market_rsi"
	ColMarketADX       = "market_adx"
	ColMarketBollWidth = "market_boll_width"
	ColTicker          = "ticker"
)

// RequiredColumns must be present after preparation.
var RequiredColumns = []string{
	ColMarketClose, ColMarketMA50, ColMarketMA200, ColMarketRSI, ColMarketADX, ColMarketBollWidth,
	indicator.ColClose, indicator.ColVolume, indicator.ColVolumeMA20, indicator.ColSMA50, indicator.ColSMA200,
	indicator.ColRSI14, indicator.ColVolumeSpike, ColTicker, indicator.ColMACD, indicator.ColMACDSignal,
	indicator.ColBollWidth, indicator.ColSMA5, indicator.ColATR14,
}

// Config holds the fallbacks used for market context when the market series is too short.
type Config struct {
	MarketBollWidthFallback float64 `yaml:"market_boll_width_fallback" json:"market_boll_width_fallback"`
	MarketADXFallback       float64 `yaml:"market_adx_fallback"        json:"market_adx_fallback"`
}

// DefaultConfig returns the standard fallbacks.
func DefaultConfig() Config {
	return Config{
		MarketBollWidthFallback: 0.5,
		MarketADXFallback:       25.0,
	}
}

// Preparer derives indicator columns on a frame.
type Preparer struct {
	registry *indicator.Registry
	config   Config
}

// NewPreparer creates a preparer using the default deriver registry.
func NewPreparer(config Config) *Preparer {
	return &Preparer{
		registry: indicator.NewDefaultRegistry(),
		config:   config,
	}
}

// NewPreparerWithRegistry creates a preparer with a custom deriver registry.
func NewPreparerWithRegistry(config Config, registry *indicator.Registry) *Preparer {
	return &Preparer{
		registry: registry,
		config:   config,
	}
}

// Prepare is a shorthand for NewPreparer(config).Prepare(ctx, frame).
func Prepare(ctx context.Context, frame *Frame, config Config) (*Frame, error) {
	return NewPreparer(config).Prepare(ctx, frame)
}

// Prepare returns a copy of frame with every missing indicator column derived.
// Present columns are left untouched so preparing twice yields the same frame.
func (p *Preparer) Prepare(ctx context.Context, frame *Frame) (*Frame, error) {
	out := frame.Clone()
	if out.Empty() {
		return out, nil
	}

	for _, ticker := range out.tickers {
		for _, t := range out.series[ticker].Times {
			if t.IsZero() {
				return nil, errors.Newf(errors.ErrCodeMissingDatetime, "ticker %s has rows without a timestamp", ticker)
			}
		}
	}

	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for _, ticker := range out.tickers {
		s := out.series[ticker]

		group.Go(func() error {
			p.registry.Apply(s)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if out.Has(ColMarketClose) {
		p.deriveMarket(out)
	}

	if missing := MissingColumns(out); len(missing) > 0 {
		return nil, errors.NewMissingColumnsError(missing)
	}

	return out, nil
}

// MissingColumns lists the required columns absent from frame, in required order.
func MissingColumns(frame *Frame) []string {
	missing := make([]string, 0)

	for _, name := range RequiredColumns {
		if name == ColTicker {
			continue
		}

		if !frame.Has(name) {
			missing = append(missing, name)
		}
	}

	return missing
}

type marketSeries struct {
	dates []time.Time
	index map[string]int
	close []float64
	high  []float64
	low   []float64
}

// collectMarket builds the distinct-by-date market series. For each date the value
// of the latest row carrying a non-missing market close wins.
func collectMarket(frame *Frame, withRange bool) marketSeries {
	type observation struct {
		at               time.Time
		close, high, low float64
	}

	latest := make(map[string]observation)
	dates := make(map[string]time.Time)

	for _, ticker := range frame.tickers {
		s := frame.series[ticker]
		mc := s.Column(ColMarketClose)

		for i, t := range s.Times {
			d := types.NormalizeDate(t)
			key := dateKey(d)
			dates[key] = d

			if math.IsNaN(mc[i]) {
				continue
			}

			prev, seen := latest[key]
			if seen && t.Before(prev.at) {
				continue
			}

			obs := observation{at: t, close: mc[i], high: math.NaN(), low: math.NaN()}
			if withRange {
				obs.high = s.Value(ColMarketHigh, i)
				obs.low = s.Value(ColMarketLow, i)
			}

			latest[key] = obs
		}
	}

	ms := marketSeries{index: make(map[string]int, len(dates))}
	for _, d := range dates {
		ms.dates = append(ms.dates, d)
	}

	sort.Slice(ms.dates, func(i, j int) bool { return ms.dates[i].Before(ms.dates[j]) })

	ms.close = indicator.NaNs(len(ms.dates))
	ms.high = indicator.NaNs(len(ms.dates))
	ms.low = indicator.NaNs(len(ms.dates))

	for i, d := range ms.dates {
		key := dateKey(d)
		ms.index[key] = i

		if obs, ok := latest[key]; ok {
			ms.close[i] = obs.close
			ms.high[i] = obs.high
			ms.low[i] = obs.low
		}
	}

	return ms
}

func (p *Preparer) deriveMarket(frame *Frame) {
	withRange := frame.Has(ColMarketHigh) && frame.Has(ColMarketLow)
	ms := collectMarket(frame, withRange)

	derived := map[string][]float64{}

	if !frame.Has(ColMarketMA50) {
		derived[ColMarketMA50] = indicator.RollingMean(ms.close, 50, 20)
	}

	if !frame.Has(ColMarketMA200) {
		derived[ColMarketMA200] = indicator.RollingMean(ms.close, 200, 50)
	}

	if !frame.Has(ColMarketRSI) {
		derived[ColMarketRSI] = indicator.ForwardFill(indicator.RSI(ms.close, indicator.DefaultRSIPeriod))
	}

	if !frame.Has(ColMarketBollWidth) {
		_, _, _, width := indicator.Bollinger(ms.close, 20, 2)
		derived[ColMarketBollWidth] = indicator.FillNaN(width, p.config.MarketBollWidthFallback)
	}

	if !frame.Has(ColMarketADX) {
		adx := indicator.NaNs(len(ms.dates))
		if withRange {
			adx = indicator.ForwardFill(indicator.ADX(ms.high, ms.low, ms.close, 14))
		}

		derived[ColMarketADX] = adx
	}

	for _, ticker := range frame.tickers {
		s := frame.series[ticker]

		for name, daily := range derived {
			col := make([]float64, s.Len())
			for i, t := range s.Times {
				col[i] = daily[ms.index[dateKey(types.NormalizeDate(t))]]
			}

			s.Set(name, col)
		}

		s.Set(ColMarketADX, indicator.FillNaN(s.Column(ColMarketADX), p.config.MarketADXFallback))
	}
}
