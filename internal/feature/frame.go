// Package feature turns raw per-ticker bars into indicator-complete tables.
package feature

import (
	"math"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/indicator"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// Series is the chronologically ordered column store of one ticker.
type Series struct {
	Ticker  string
	Times   []time.Time
	columns map[string][]float64
}

// NewSeries creates an empty series for ticker with the given timestamps.
func NewSeries(ticker string, times []time.Time) *Series {
	return &Series{
		Ticker:  ticker,
		Times:   times,
		columns: make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (s *Series) Len() int {
	return len(s.Times)
}

// Has reports whether the column is present.
func (s *Series) Has(name string) bool {
	_, ok := s.columns[name]

	return ok
}

// Column returns the column values or nil when absent.
func (s *Series) Column(name string) []float64 {
	return s.columns[name]
}

// Set stores a column. values must have Len() elements.
func (s *Series) Set(name string, values []float64) {
	s.columns[name] = values
}

// Value returns the value at row i or NaN when the column is absent.
func (s *Series) Value(name string, i int) float64 {
	col, ok := s.columns[name]
	if !ok {
		return math.NaN()
	}

	return col[i]
}

// ColumnNames returns the present column names sorted.
func (s *Series) ColumnNames() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Clone deep copies the series.
func (s *Series) Clone() *Series {
	times := make([]time.Time, len(s.Times))
	copy(times, s.Times)

	out := NewSeries(s.Ticker, times)

	for name, values := range s.columns {
		cp := make([]float64, len(values))
		copy(cp, values)
		out.columns[name] = cp
	}

	return out
}

// Row builds the typed indicator row at index i.
func (s *Series) Row(i int) types.IndicatorRow {
	return types.IndicatorRow{
		Ticker:      s.Ticker,
		Time:        s.Times[i],
		Date:        types.NormalizeDate(s.Times[i]),
		Open:        s.Value(indicator.ColOpen, i),
		High:        s.Value(indicator.ColHigh, i),
		Low:         s.Value(indicator.ColLow, i),
		Close:       s.Value(indicator.ColClose, i),
		Volume:      s.Value(indicator.ColVolume, i),
		AdjFactor:   s.Value(types.FieldAdjFactor, i),
		SMA5:        s.Value(indicator.ColSMA5, i),
		SMA50:       s.Value(indicator.ColSMA50, i),
		SMA200:      s.Value(indicator.ColSMA200, i),
		RSI14:       s.Value(indicator.ColRSI14, i),
		MACD:        s.Value(indicator.ColMACD, i),
		MACDSignal:  s.Value(indicator.ColMACDSignal, i),
		ATR14:       s.Value(indicator.ColATR14, i),
		BollUpper:   s.Value(indicator.ColBollUpper, i),
		BollLower:   s.Value(indicator.ColBollLower, i),
		BollWidth:   s.Value(indicator.ColBollWidth, i),
		VolumeMA20:  s.Value(indicator.ColVolumeMA20, i),
		VolumeSpike: s.Value(indicator.ColVolumeSpike, i),
		MFI14:       s.Value(indicator.ColMFI14, i),
		OBV:         s.Value(indicator.ColOBV, i),
		HighestIn5d: s.Value(indicator.ColHighestIn5d, i),
		Market: types.MarketSnapshot{
			Close:     s.Value(ColMarketClose, i),
			MA50:      s.Value(ColMarketMA50, i),
			MA200:     s.Value(ColMarketMA200, i),
			RSI:       s.Value(ColMarketRSI, i),
			ADX:       s.Value(ColMarketADX, i),
			BollWidth: s.Value(ColMarketBollWidth, i),
		},
	}
}

// Frame is a multi-ticker table stored column-wise per ticker.
// Every series carries the same set of columns.
type Frame struct {
	series  map[string]*Series
	tickers []string
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{
		series:  make(map[string]*Series),
		tickers: nil,
	}
}

// FromBars groups bars by ticker, orders each group by time and keeps the last
// bar of any duplicated (ticker, time) pair. A column is present when at least one
// bar carries it; bars without it hold NaN.
func FromBars(bars []types.MarketBar) (*Frame, error) {
	grouped := make(map[string][]types.MarketBar)
	hasOpen, hasHigh, hasLow := false, false, false
	extras := make(map[string]struct{})

	for _, bar := range bars {
		if bar.Ticker == "" {
			return nil, errors.New(errors.ErrCodeMissingColumns, "bar without ticker")
		}

		if bar.Time.IsZero() {
			return nil, errors.Newf(errors.ErrCodeMissingDatetime, "bar for %s has no timestamp", bar.Ticker)
		}

		hasOpen = hasOpen || bar.Open.IsSome()
		hasHigh = hasHigh || bar.High.IsSome()
		hasLow = hasLow || bar.Low.IsSome()

		for name := range bar.Extras {
			extras[name] = struct{}{}
		}

		grouped[bar.Ticker] = append(grouped[bar.Ticker], bar)
	}

	frame := NewFrame()

	for ticker, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Time.Before(group[j].Time) })
		group = dedupeLast(group)

		times := make([]time.Time, len(group))
		for i, bar := range group {
			times[i] = bar.Time
		}

		s := NewSeries(ticker, times)
		s.Set(indicator.ColClose, pluck(group, func(b types.MarketBar) float64 { return b.Close }))
		s.Set(indicator.ColVolume, pluck(group, func(b types.MarketBar) float64 { return b.Volume }))

		if hasOpen {
			s.Set(indicator.ColOpen, pluck(group, func(b types.MarketBar) float64 { return b.Open.TakeOr(math.NaN()) }))
		}

		if hasHigh {
			s.Set(indicator.ColHigh, pluck(group, func(b types.MarketBar) float64 { return b.High.TakeOr(math.NaN()) }))
		}

		if hasLow {
			s.Set(indicator.ColLow, pluck(group, func(b types.MarketBar) float64 { return b.Low.TakeOr(math.NaN()) }))
		}

		for name := range extras {
			s.Set(name, pluck(group, func(b types.MarketBar) float64 { return b.Extra(name) }))
		}

		if err := frame.AddSeries(s); err != nil {
			return nil, err
		}
	}

	return frame, nil
}

func dedupeLast(sorted []types.MarketBar) []types.MarketBar {
	out := make([]types.MarketBar, 0, len(sorted))

	for i, bar := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Time.Equal(bar.Time) {
			continue
		}

		out = append(out, bar)
	}

	return out
}

func pluck(bars []types.MarketBar, get func(types.MarketBar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = get(b)
	}

	return out
}

// AddSeries inserts a series; tickers must be unique.
func (f *Frame) AddSeries(s *Series) error {
	if _, exists := f.series[s.Ticker]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "ticker %s already in frame", s.Ticker)
	}

	f.series[s.Ticker] = s
	f.tickers = append(f.tickers, s.Ticker)
	sort.Strings(f.tickers)

	return nil
}

// Tickers returns the tickers in ascending order.
func (f *Frame) Tickers() []string {
	out := make([]string, len(f.tickers))
	copy(out, f.tickers)

	return out
}

// Series returns the series of ticker.
func (f *Frame) Series(ticker string) (*Series, bool) {
	s, ok := f.series[ticker]

	return s, ok
}

// Len returns the total number of rows.
func (f *Frame) Len() int {
	total := 0
	for _, s := range f.series {
		total += s.Len()
	}

	return total
}

// Empty reports whether the frame holds no rows.
func (f *Frame) Empty() bool {
	return f.Len() == 0
}

// Has reports whether every series carries the column.
func (f *Frame) Has(name string) bool {
	if len(f.series) == 0 {
		return false
	}

	for _, s := range f.series {
		if !s.Has(name) {
			return false
		}
	}

	return true
}

// Columns returns the column names of the first series.
func (f *Frame) Columns() []string {
	if len(f.tickers) == 0 {
		return nil
	}

	return f.series[f.tickers[0]].ColumnNames()
}

// Clone deep copies the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame()
	for _, ticker := range f.tickers {
		out.series[ticker] = f.series[ticker].Clone()
	}

	out.tickers = f.Tickers()

	return out
}

// Dates returns the distinct calendar dates across all tickers, ascending.
func (f *Frame) Dates() []time.Time {
	seen := make(map[string]time.Time)

	for _, s := range f.series {
		for _, t := range s.Times {
			d := types.NormalizeDate(t)
			seen[dateKey(d)] = d
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return dates
}

// LatestTime returns the greatest timestamp in the frame.
func (f *Frame) LatestTime() (time.Time, bool) {
	var latest time.Time

	found := false

	for _, s := range f.series {
		if s.Len() == 0 {
			continue
		}

		t := s.Times[s.Len()-1]
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}

	return latest, found
}

// Filter keeps rows whose calendar date lies in [start, end]. Zero bounds are open.
func (f *Frame) Filter(start, end time.Time) *Frame {
	out := NewFrame()

	for _, ticker := range f.tickers {
		s := f.series[ticker]
		keep := make([]int, 0, s.Len())

		for i, t := range s.Times {
			d := types.NormalizeDate(t)
			if !start.IsZero() && d.Before(types.NormalizeDate(start)) {
				continue
			}

			if !end.IsZero() && d.After(types.NormalizeDate(end)) {
				continue
			}

			keep = append(keep, i)
		}

		times := make([]time.Time, len(keep))
		for j, i := range keep {
			times[j] = s.Times[i]
		}

		filtered := NewSeries(ticker, times)

		for name, values := range s.columns {
			col := make([]float64, len(keep))
			for j, i := range keep {
				col[j] = values[i]
			}

			filtered.columns[name] = col
		}

		out.series[ticker] = filtered
		out.tickers = append(out.tickers, ticker)
	}

	return out
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
