// Package export turns a trade ledger into signal rows and writes them as CSV or parquet.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// TradesToSignals maps every trade to a BUY_NEW row at its entry and a SELL row at its
// exit. Rows are ordered by date, signal type and ticker.
func TradesToSignals(trades []types.Trade) []types.SignalRecord {
	records := make([]types.SignalRecord, 0, len(trades)*2)

	for _, trade := range trades {
		entry := finite(trade.EntryPrice)
		exit := finite(trade.ExitPrice)
		profit := finite(trade.Profit)

		pct := optional.None[decimal.Decimal]()
		if profit.IsSome() {
			pct = profitPct(entry, exit)
		}

		records = append(records, types.SignalRecord{
			Date:        types.NormalizeDate(trade.EntryDate),
			SignalType:  types.SignalTypeBuyNew,
			Ticker:      trade.Ticker,
			Price:       entry,
			Shares:      trade.Shares,
			HoldingDays: trade.HoldingDays,
			ExitType:    "",
			Profit:      optional.None[decimal.Decimal](),
			ProfitPct:   optional.None[decimal.Decimal](),
		})

		records = append(records, types.SignalRecord{
			Date:        types.NormalizeDate(trade.ExitDate),
			SignalType:  types.SignalTypeSell,
			Ticker:      trade.Ticker,
			Price:       exit,
			Shares:      trade.Shares,
			HoldingDays: trade.HoldingDays,
			ExitType:    trade.ExitType,
			Profit:      profit,
			ProfitPct:   pct,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}

		if a.SignalType != b.SignalType {
			return a.SignalType < b.SignalType
		}

		return a.Ticker < b.Ticker
	})

	return records
}

// finite converts v to a decimal. NaN and infinities are none.
func finite(v float64) optional.Option[decimal.Decimal] {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(decimal.NewFromFloat(v))
}

// profitPct is exit/entry - 1, or none when either price is missing or the entry is zero.
func profitPct(entry, exit optional.Option[decimal.Decimal]) optional.Option[decimal.Decimal] {
	if entry.IsNone() || exit.IsNone() || entry.Unwrap().IsZero() {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(exit.Unwrap().DivRound(entry.Unwrap(), 12).Sub(decimal.NewFromInt(1)))
}

// WriteCSV writes the records with a header row. Missing profit cells are empty.
func WriteCSV(w io.Writer, records []types.SignalRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(types.SignalColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Date.Format(dateLayout),
			string(r.SignalType),
			r.Ticker,
			formatOptional(r.Price),
			strconv.FormatInt(r.Shares, 10),
			strconv.Itoa(r.HoldingDays),
			string(r.ExitType),
			formatOptional(r.Profit),
			formatOptional(r.ProfitPct),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()

	return writer.Error()
}

func formatOptional(v optional.Option[decimal.Decimal]) string {
	if v.IsNone() {
		return ""
	}

	return v.Unwrap().String()
}
