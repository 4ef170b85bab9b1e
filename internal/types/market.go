package types

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
)

// Well known optional numeric fields carried in MarketBar.Extras.
const (
	FieldMarketClose = "market_close"
	FieldMarketHigh  = "market_high"
	FieldMarketLow   = "market_low"
	FieldForeignBuy  = "foreign_buy"
	FieldForeignSell = "foreign_sell"
	FieldAdjFactor   = "adj_factor"
)

// MarketBar is one raw observation for a ticker at a timestamp.
// Open, High and Low are optional because some feeds only publish close and volume.
// Extras holds any other numeric column (market index fields, foreign flows,
// pre-computed indicators) keyed by column name.
type MarketBar struct {
	Ticker string                   `csv:"ticker"`
	Time   time.Time                `csv:"time"`
	Open   optional.Option[float64] `csv:"open"`
	High   optional.Option[float64] `csv:"high"`
	Low    optional.Option[float64] `csv:"low"`
	Close  float64                  `csv:"close"`
	Volume float64                  `csv:"volume"`
	Extras map[string]float64       `csv:"-"`
}

// Extra returns the named extra field or NaN when it is absent.
func (b MarketBar) Extra(name string) float64 {
	if v, ok := b.Extras[name]; ok {
		return v
	}

	return math.NaN()
}

// MarketSnapshot carries the market index indicators of a single calendar date.
type MarketSnapshot struct {
	Close     float64 `yaml:"close"`
	MA50      float64 `yaml:"ma50"`
	MA200     float64 `yaml:"ma200"`
	RSI       float64 `yaml:"rsi"`
	ADX       float64 `yaml:"adx"`
	BollWidth float64 `yaml:"boll_width"`
}

// IndicatorRow is a MarketBar extended with every derived indicator column.
// Missing values are NaN.
type IndicatorRow struct {
	Ticker string
	Time   time.Time
	// Date is Time truncated to the calendar day.
	Date time.Time

	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	AdjFactor float64

	SMA5        float64
	SMA50       float64
	SMA200      float64
	RSI14       float64
	MACD        float64
	MACDSignal  float64
	ATR14       float64
	BollUpper   float64
	BollLower   float64
	BollWidth   float64
	VolumeMA20  float64
	VolumeSpike float64
	MFI14       float64
	OBV         float64
	HighestIn5d float64

	Market MarketSnapshot
}

// MACDHistogram returns macd minus its signal line.
func (r IndicatorRow) MACDHistogram() float64 {
	return r.MACD - r.MACDSignal
}

// AdjustedClose returns close multiplied by the adjustment factor when one is set.
func (r IndicatorRow) AdjustedClose() float64 {
	if math.IsNaN(r.AdjFactor) || r.AdjFactor == 0 {
		return r.Close
	}

	return r.Close * r.AdjFactor
}

// NormalizeDate truncates t to midnight in its own location.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
