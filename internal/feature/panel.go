package feature

import (
	"sort"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Panel is a date by ticker lookup of prepared rows.
// When a ticker has several rows on one date, the latest row is kept.
type Panel struct {
	dates []time.Time
	index map[string]int
	rows  []map[string]types.IndicatorRow
}

// NewPanel pivots a prepared frame into a daily panel.
func NewPanel(frame *Frame) *Panel {
	dates := frame.Dates()
	p := &Panel{
		dates: dates,
		index: make(map[string]int, len(dates)),
		rows:  make([]map[string]types.IndicatorRow, len(dates)),
	}

	for i, d := range dates {
		p.index[dateKey(d)] = i
		p.rows[i] = make(map[string]types.IndicatorRow)
	}

	for _, ticker := range frame.tickers {
		s := frame.series[ticker]
		for i := range s.Times {
			row := s.Row(i)
			p.rows[p.index[dateKey(row.Date)]][ticker] = row
		}
	}

	return p
}

// Dates returns the ordered calendar dates.
func (p *Panel) Dates() []time.Time {
	return p.dates
}

// Len returns the number of dates.
func (p *Panel) Len() int {
	return len(p.dates)
}

// IndexOf returns the position of date in Dates.
func (p *Panel) IndexOf(date time.Time) (int, bool) {
	i, ok := p.index[dateKey(types.NormalizeDate(date))]

	return i, ok
}

// Row returns the row of ticker on the date at position i.
func (p *Panel) Row(i int, ticker string) (types.IndicatorRow, bool) {
	if i < 0 || i >= len(p.rows) {
		return types.IndicatorRow{}, false
	}

	row, ok := p.rows[i][ticker]

	return row, ok
}

// Day returns every row of the date at position i, ordered by ticker.
func (p *Panel) Day(i int) []types.IndicatorRow {
	day := p.rows[i]
	out := make([]types.IndicatorRow, 0, len(day))

	for _, row := range day {
		out = append(out, row)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Ticker < out[b].Ticker })

	return out
}

// Market returns the market context of the date at position i.
func (p *Panel) Market(i int) (types.MarketSnapshot, bool) {
	day := p.Day(i)
	if len(day) == 0 {
		return types.MarketSnapshot{}, false
	}

	return day[0].Market, true
}

// LatestRows returns the last row of every ticker, ordered by ticker.
func LatestRows(frame *Frame) []types.IndicatorRow {
	out := make([]types.IndicatorRow, 0, len(frame.tickers))

	for _, ticker := range frame.tickers {
		s := frame.series[ticker]
		if s.Len() == 0 {
			continue
		}

		out = append(out, s.Row(s.Len()-1))
	}

	return out
}

// WeeklySnapshot returns the last row per ticker of the Monday of the latest week.
// When that Monday has no data the closest earlier date is used, and when no date
// on or before it exists the latest date is used.
func WeeklySnapshot(frame *Frame) []types.IndicatorRow {
	latest, ok := frame.LatestTime()
	if !ok {
		return nil
	}

	offset := (int(latest.Weekday()) + 6) % 7
	monday := types.NormalizeDate(latest).AddDate(0, 0, -offset)

	dates := frame.Dates()
	chosen := dates[len(dates)-1]

	for i := len(dates) - 1; i >= 0; i-- {
		if !dates[i].After(monday) {
			chosen = dates[i]

			break
		}
	}

	out := make([]types.IndicatorRow, 0, len(frame.tickers))

	for _, ticker := range frame.tickers {
		s := frame.series[ticker]
		for i := s.Len() - 1; i >= 0; i-- {
			if types.NormalizeDate(s.Times[i]).Equal(chosen) {
				out = append(out, s.Row(i))

				break
			}
		}
	}

	return out
}
