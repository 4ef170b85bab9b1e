// Package alert derives notification alerts from backtest trades and breakout triggers.
package alert

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	hashVersion = "v1"
	// SlotLength is the width of an intraday alert window.
	SlotLength = 15 * time.Minute
	// summaryLimit is how many alerts Summary lists before collapsing the rest.
	summaryLimit = 10
)

// session is a trading session in minutes after midnight, both ends inclusive.
type session struct {
	from, to int
}

var hoseSessions = []session{
	{from: 9 * 60, to: 11*60 + 30},
	{from: 13 * 60, to: 15 * 60},
}

// FromTrades emits a BUY_NEW alert for every entry and a SELL alert for every exit
// that happened on lastDate. Alerts cover the whole calendar day.
func FromTrades(trades []types.Trade, lastDate time.Time) []types.Alert {
	day := types.NormalizeDate(lastDate)
	slotStart, slotEnd := day, day.Add(24*time.Hour)
	when := day.Format(dateLayout)

	alerts := make([]types.Alert, 0)

	for _, trade := range trades {
		if sameDay(trade.EntryDate, day) {
			alerts = append(alerts, types.Alert{
				Ticker:    trade.Ticker,
				EventType: types.AlertEventBuyNew,
				Price:     optional.Some(trade.EntryPrice),
				When:      when,
				SlotStart: slotStart,
				SlotEnd:   slotEnd,
				Explain:   "Action=buy",
			})
		}

		if sameDay(trade.ExitDate, day) {
			pct := 0.0
			if trade.EntryPrice != 0 {
				pct = (trade.ExitPrice/trade.EntryPrice - 1) * 100
			}

			alerts = append(alerts, types.Alert{
				Ticker:    trade.Ticker,
				EventType: types.AlertEventSell,
				Price:     optional.Some(trade.ExitPrice),
				When:      when,
				SlotStart: slotStart,
				SlotEnd:   slotEnd,
				Explain:   fmt.Sprintf("Action=sell; profit=%.0f; profit_pct=%.2f%%", trade.Profit, pct),
			})
		}
	}

	return alerts
}

// FromBreakouts turns breakout rows into BUY_NEW alerts. Rows stamped outside the
// HOSE sessions in loc are skipped, so daily bars at midnight never fire.
func FromBreakouts(rows []types.IndicatorRow, loc *time.Location) []types.Alert {
	if loc == nil {
		loc = time.UTC
	}

	alerts := make([]types.Alert, 0)

	for _, row := range rows {
		local := WallClock(row.Time, loc)
		if !InSession(local) {
			continue
		}

		explain := fmt.Sprintf("Breakout 5d; Vol spike≈%.2f", row.VolumeSpike)
		if !math.IsNaN(row.RSI14) {
			explain += fmt.Sprintf("; RSI14≈%.0f", row.RSI14)
		}

		start := local.Truncate(SlotLength)

		alerts = append(alerts, types.Alert{
			Ticker:    row.Ticker,
			EventType: types.AlertEventBuyNew,
			Price:     optional.Some(row.Close),
			When:      local.Format(clockLayout),
			SlotStart: start,
			SlotEnd:   start.Add(SlotLength),
			Explain:   explain,
		})
	}

	return alerts
}

// WallClock reads a UTC timestamp as a naive wall-clock time in loc. Timestamps
// that already carry a zone are converted instead.
func WallClock(t time.Time, loc *time.Location) time.Time {
	if t.Location() == time.UTC {
		y, m, d := t.Date()

		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}

	return t.In(loc)
}

// InSession reports whether t falls inside a HOSE trading session.
func InSession(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	for _, s := range hoseSessions {
		if minute >= s.from && minute <= s.to {
			return true
		}
	}

	return false
}

// TestAlert is the fixed alert sent when a run is forced into test mode.
func TestAlert(now time.Time) types.Alert {
	start := now.Truncate(SlotLength)

	return types.Alert{
		Ticker:    "TEST",
		EventType: types.AlertEventInfo,
		Price:     optional.Some(1234.0),
		When:      "now",
		SlotStart: start,
		SlotEnd:   start.Add(SlotLength),
		Explain:   "force-test alert",
	}
}

// DedupeKey identifies an alert within a day: YYYY-MM-DD:TICKER:EVENT:slot.
// The slot is the alert's When label, else mode, else "now".
func DedupeKey(day time.Time, a types.Alert, mode string) string {
	slot := a.When
	if slot == "" {
		slot = mode
	}

	if slot == "" {
		slot = "now"
	}

	return strings.Join([]string{day.Format(dateLayout), a.Ticker, string(a.EventType), slot}, ":")
}

// Hash is the content hash used by the outbox to suppress repeats of the same alert
// in the same window.
func Hash(a types.Alert) string {
	payload := strings.Join([]string{
		a.Ticker,
		string(a.EventType),
		a.SlotStart.UTC().Format(time.RFC3339),
		a.SlotEnd.UTC().Format(time.RFC3339),
		hashVersion,
	}, "|")

	sum := sha1.Sum([]byte(payload))

	return hex.EncodeToString(sum[:])
}

// Summary renders up to ten alerts on one line for logs.
func Summary(alerts []types.Alert) string {
	if len(alerts) == 0 {
		return "no alerts"
	}

	parts := make([]string, 0, summaryLimit)

	for i, a := range alerts {
		if i == summaryLimit {
			break
		}

		parts = append(parts, fmt.Sprintf("%s %s price=%s when=%s", a.Ticker, a.EventType, FormatPrice(a.Price), a.When))
	}

	out := strings.Join(parts, " | ")
	if rest := len(alerts) - summaryLimit; rest > 0 {
		out += fmt.Sprintf(" (+%d more)", rest)
	}

	return out
}

// FormatPrice prints the price with two decimals, or "-" when it is missing.
func FormatPrice(price optional.Option[float64]) string {
	if price.IsNone() {
		return "-"
	}

	return fmt.Sprintf("%.2f", price.Unwrap())
}

func sameDay(t, day time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()

	return y1 == y2 && m1 == m2 && d1 == d2
}
