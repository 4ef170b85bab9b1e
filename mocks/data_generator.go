package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// DataGenerator generates realistic daily market data for testing and benchmarking.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how market data is generated.
type GeneratorConfig struct {
	// Ticker is the stock code (e.g., "HPG", "VNM")
	Ticker string
	// StartDate is the first trading day. Weekends are skipped.
	StartDate time.Time
	// Count is the number of trading days to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement (0.02 = 2% typical daily volatility)
	Volatility float64
	// Trend is the total drift over the series (-0.5 to 0.5 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per day
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Ticker:         "TEST",
		StartDate:      time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Count:          300,
		InitialPrice:   25000.0,
		Volatility:     0.02,
		Trend:          0.0,
		VolumeBase:     1_000_000,
		VolumeVariance: 0.3,
	}
}

// Generate creates daily bars following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.MarketBar {
	data := make([]types.MarketBar, 0, config.Count)
	currentPrice := config.InitialPrice
	currentDate := nextTradingDay(config.StartDate)

	for range config.Count {
		open := currentPrice

		// Box-Muller transform for a standard normal draw
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		priceChange := config.Volatility * z
		drift := config.Trend / float64(config.Count)

		closePrice := open * (1 + priceChange + drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, closePrice) + highExtension
		low := math.Min(open, closePrice) - lowExtension
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance
		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		data = append(data, types.MarketBar{
			Ticker: config.Ticker,
			Time:   currentDate,
			Open:   optional.Some(roundToDecimals(open, 2)),
			High:   optional.Some(roundToDecimals(high, 2)),
			Low:    optional.Some(roundToDecimals(low, 2)),
			Close:  roundToDecimals(closePrice, 2),
			Volume: math.Round(volume),
			Extras: map[string]float64{},
		})

		currentPrice = closePrice
		currentDate = nextTradingDay(currentDate.AddDate(0, 0, 1))
	}

	return data
}

// GenerateUniverse generates bars for every ticker and attaches the market index
// (market_close, market_high, market_low) of the same date to each bar.
func (g *DataGenerator) GenerateUniverse(tickers []string, baseConfig GeneratorConfig, index GeneratorConfig) []types.MarketBar {
	index.StartDate = baseConfig.StartDate
	index.Count = baseConfig.Count

	market := make(map[time.Time]types.MarketBar, index.Count)
	for _, bar := range g.Generate(index) {
		market[bar.Time] = bar
	}

	var all []types.MarketBar

	for _, ticker := range tickers {
		config := baseConfig
		config.Ticker = ticker
		// vary initial price and volatility slightly per ticker
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		for _, bar := range g.Generate(config) {
			m := market[bar.Time]
			bar.Extras[types.FieldMarketClose] = m.Close
			bar.Extras[types.FieldMarketHigh] = m.High.TakeOr(m.Close)
			bar.Extras[types.FieldMarketLow] = m.Low.TakeOr(m.Close)
			all = append(all, bar)
		}
	}

	return all
}

// GenerateYears is a convenience function generating roughly two years of a
// bullish universe with a fixed seed.
func GenerateYears(tickers []string) []types.MarketBar {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 500
	config.Trend = 0.4

	index := DefaultConfig()
	index.Ticker = "VNINDEX"
	index.InitialPrice = 1000
	index.Volatility = 0.01
	index.Trend = 0.3

	return gen.GenerateUniverse(tickers, config, index)
}

func nextTradingDay(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}

	return t
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
