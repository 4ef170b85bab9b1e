package types

import (
	"time"
)

// ExitType labels why a trade was closed.
type ExitType string

const (
	ExitTypeNormal       ExitType = "Normal"
	ExitTypePyramid      ExitType = "Pyramid"
	ExitTypeMomentumLoss ExitType = "Momentum Loss"
)

// Position is an open holding owned by a single simulation run.
type Position struct {
	Ticker     string  `yaml:"ticker"`
	Shares     int64   `yaml:"shares"`
	EntryPrice float64 `yaml:"entry_price"`
	// AvgCost is the share weighted cost after pyramid adds.
	AvgCost   float64   `yaml:"avg_cost"`
	EntryDate time.Time `yaml:"entry_date"`

	TakeProfit   float64 `yaml:"take_profit"`
	StopLoss     float64 `yaml:"stop_loss"`
	TrailingStop float64 `yaml:"trailing_stop"`
	HighestPrice float64 `yaml:"highest_price"`
	PyramidCount int     `yaml:"pyramid_count"`
}

// PendingSettlement is sale proceeds that become spendable on SettlementDate.
type PendingSettlement struct {
	SettlementDate time.Time
	Amount         float64
}

// Trade is a completed (full or partial) round trip. Trades are never mutated after creation.
type Trade struct {
	Ticker      string    `csv:"ticker" yaml:"ticker"`
	EntryDate   time.Time `csv:"entry_date" yaml:"entry_date"`
	ExitDate    time.Time `csv:"exit_date" yaml:"exit_date"`
	EntryPrice  float64   `csv:"entry_price" yaml:"entry_price"`
	ExitPrice   float64   `csv:"exit_price" yaml:"exit_price"`
	Shares      int64     `csv:"shares" yaml:"shares"`
	Profit      float64   `csv:"profit" yaml:"profit"`
	HoldingDays int       `csv:"holding_days" yaml:"holding_days"`
	ExitType    ExitType  `csv:"exit_type" yaml:"exit_type"`
}
