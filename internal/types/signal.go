package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

type SignalType string

const (
	// SignalTypeBuyNew marks the entry leg of a trade
	SignalTypeBuyNew SignalType = "BUY_NEW"
	// SignalTypeSell marks the exit leg of a trade
	SignalTypeSell SignalType = "SELL"
)

// SignalRecord is one normalized export row. Profit fields are only set on SELL rows.
// Price is none when the ledger price is missing or not finite.
type SignalRecord struct {
	Date        time.Time
	SignalType  SignalType
	Ticker      string
	Price       optional.Option[decimal.Decimal]
	Shares      int64
	HoldingDays int
	ExitType    ExitType
	Profit      optional.Option[decimal.Decimal]
	ProfitPct   optional.Option[decimal.Decimal]
}

// SignalColumns is the column order of the signal export.
var SignalColumns = []string{
	"date", "signal_type", "ticker", "price", "shares", "holding_days", "exit_type", "profit", "profit_pct",
}
