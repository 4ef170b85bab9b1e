package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/suite"
)

type IndicatorTestSuite struct {
	suite.Suite
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

// randomWalk returns deterministic OHLCV series of length n.
func randomWalk(seed int64, n int) (high, low, close, volume []float64) {
	rng := rand.New(rand.NewSource(seed))
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	volume = make([]float64, n)
	price := 100.0

	for i := 0; i < n; i++ {
		price *= 1 + (rng.Float64()-0.5)*0.06
		close[i] = price
		high[i] = price * (1 + rng.Float64()*0.02)
		low[i] = price * (1 - rng.Float64()*0.02)
		volume[i] = 100000 + rng.Float64()*900000
	}

	return high, low, close, volume
}

func (suite *IndicatorTestSuite) assertSeriesEqual(expected, actual []float64) {
	suite.Require().Len(actual, len(expected))

	for i := range expected {
		if math.IsNaN(expected[i]) {
			suite.True(math.IsNaN(actual[i]), "index %d: expected NaN, got %v", i, actual[i])

			continue
		}

		suite.InDelta(expected[i], actual[i], 1e-9, "index %d", i)
	}
}

func (suite *IndicatorTestSuite) TestRollingMeanMinPeriods() {
	x := []float64{1, 2, 3, 4, 5, 6}

	got := RollingMean(x, 4, 2)
	suite.assertSeriesEqual([]float64{math.NaN(), 1.5, 2, 2.5, 3.5, 4.5}, got)
}

func (suite *IndicatorTestSuite) TestRollingMeanSkipsMissing() {
	x := []float64{1, math.NaN(), 3, math.NaN()}

	got := RollingMean(x, 3, 2)
	suite.assertSeriesEqual([]float64{math.NaN(), math.NaN(), 2, math.NaN()}, got)
}

func (suite *IndicatorTestSuite) TestRollingStd() {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	got := RollingStd(x, 8, 8)
	suite.True(math.IsNaN(got[6]))
	suite.InDelta(2.138089935, got[7], 1e-9)
}

func (suite *IndicatorTestSuite) TestRollingMaxAndShift() {
	x := []float64{1, 5, 3, 2, 4, 1, 0}

	got := Shift(RollingMax(x, 5, 2), 1)
	suite.assertSeriesEqual([]float64{math.NaN(), math.NaN(), 5, 5, 5, 5, 5}, got)
}

func (suite *IndicatorTestSuite) TestForwardFill() {
	x := []float64{math.NaN(), 1, math.NaN(), 3, math.NaN()}

	suite.assertSeriesEqual([]float64{math.NaN(), 1, 1, 3, 3}, ForwardFill(x))
	suite.assertSeriesEqual([]float64{7, 1, 7, 3, 7}, FillNaN(x, 7))
}

func (suite *IndicatorTestSuite) TestEMASeededWithFirstValue() {
	x := []float64{10, 20, math.NaN(), 20}

	got := EMA(x, 3)
	// alpha = 0.5
	suite.assertSeriesEqual([]float64{10, 15, 15, 17.5}, got)
}

func (suite *IndicatorTestSuite) TestRSI() {
	suite.Run("strictly rising series has no losses", func() {
		x := make([]float64, 30)
		for i := range x {
			x[i] = float64(100 + i)
		}

		got := RSI(x, 14)
		for _, v := range got {
			suite.True(math.IsNaN(v))
		}
	})

	suite.Run("first value after a full window", func() {
		x := make([]float64, 20)
		for i := range x {
			x[i] = 100 + float64(i%2)
		}

		got := RSI(x, 14)
		suite.True(math.IsNaN(got[12]))
		suite.False(math.IsNaN(got[13]))
		suite.InDelta(50.0, got[19], 5.0)
	})

	suite.Run("bounded between 0 and 100", func() {
		_, _, close, _ := randomWalk(7, 400)

		for _, v := range RSI(close, 14) {
			if math.IsNaN(v) {
				continue
			}

			suite.GreaterOrEqual(v, 0.0)
			suite.LessOrEqual(v, 100.0)
		}
	})
}

func (suite *IndicatorTestSuite) TestMACDConstantSeries() {
	x := make([]float64, 50)
	for i := range x {
		x[i] = 42
	}

	macd, signal, hist := MACD(x, 12, 26, 9)
	for i := range x {
		suite.InDelta(0, macd[i], 1e-12)
		suite.InDelta(0, signal[i], 1e-12)
		suite.InDelta(0, hist[i], 1e-12)
	}
}

func (suite *IndicatorTestSuite) TestTrueRangeAndATR() {
	high := []float64{11, 12, 15}
	low := []float64{9, 10, 12}
	close := []float64{10, 11, 14}

	tr := TrueRange(high, low, close)
	suite.assertSeriesEqual([]float64{2, 2, 4}, tr)

	atr := ATR(high, low, close, 3)
	suite.assertSeriesEqual([]float64{math.NaN(), math.NaN(), 8.0 / 3.0}, atr)
}

func (suite *IndicatorTestSuite) TestBollinger() {
	suite.Run("constant series has zero width", func() {
		x := make([]float64, 25)
		for i := range x {
			x[i] = 10
		}

		_, upper, lower, width := Bollinger(x, 20, 2)
		suite.True(math.IsNaN(width[18]))
		suite.InDelta(0, width[24], 1e-12)
		suite.InDelta(10, upper[24], 1e-12)
		suite.InDelta(10, lower[24], 1e-12)
	})

	suite.Run("zero middle band gives NaN width", func() {
		x := make([]float64, 20)

		_, _, _, width := Bollinger(x, 20, 2)
		suite.True(math.IsNaN(width[19]))
	})

	suite.Run("width is never negative", func() {
		_, _, close, _ := randomWalk(11, 300)

		_, _, _, width := Bollinger(close, 20, 2)
		for _, v := range width {
			if !math.IsNaN(v) {
				suite.GreaterOrEqual(v, 0.0)
			}
		}
	})
}

func (suite *IndicatorTestSuite) TestOBV() {
	close := []float64{10, 11, 11, 9, math.NaN(), 12}
	volume := []float64{100, 200, 300, 400, 500, math.NaN()}

	suite.assertSeriesEqual([]float64{0, 200, 200, -200, -200, -200}, OBV(close, volume))
}

func (suite *IndicatorTestSuite) TestMFIAndADXBounded() {
	high, low, close, volume := randomWalk(3, 400)

	for _, v := range MFI(high, low, close, volume, 14) {
		if !math.IsNaN(v) {
			suite.GreaterOrEqual(v, 0.0)
			suite.LessOrEqual(v, 100.0)
		}
	}

	adx := ADX(high, low, close, 14)
	valid := 0

	for _, v := range adx {
		if !math.IsNaN(v) {
			valid++

			suite.GreaterOrEqual(v, 0.0)
			suite.LessOrEqual(v, 100.0)
		}
	}

	suite.Greater(valid, 300)
}

func (suite *IndicatorTestSuite) TestVolumeSpike() {
	got := VolumeSpike([]float64{100, 100, 5000, 100}, []float64{50, 0, 100, math.NaN()})
	suite.assertSeriesEqual([]float64{2, math.NaN(), 10, math.NaN()}, got)
}

// Perturbing rows after index k must not change any value at or before k.
func (suite *IndicatorTestSuite) TestNoLookahead() {
	const n, k = 300, 180

	high, low, close, volume := randomWalk(21, n)

	perturb := func(x []float64) []float64 {
		out := make([]float64, len(x))
		copy(out, x)

		for i := k + 1; i < len(out); i++ {
			out[i] *= 3.5
		}

		return out
	}

	ph, pl, pc, pv := perturb(high), perturb(low), perturb(close), perturb(volume)

	type pair struct {
		name     string
		original []float64
		changed  []float64
	}

	macd, signal, _ := MACD(close, 12, 26, 9)
	pmacd, psignal, _ := MACD(pc, 12, 26, 9)
	_, upper, _, width := Bollinger(close, 20, 2)
	_, pupper, _, pwidth := Bollinger(pc, 20, 2)

	cases := []pair{
		{"sma_200", SMA(close, 200, 50), SMA(pc, 200, 50)},
		{"rsi", RSI(close, 14), RSI(pc, 14)},
		{"macd", macd, pmacd},
		{"macd_signal", signal, psignal},
		{"atr", ATR(high, low, close, 14), ATR(ph, pl, pc, 14)},
		{"boll_upper", upper, pupper},
		{"boll_width", width, pwidth},
		{"obv", OBV(close, volume), OBV(pc, pv)},
		{"mfi", MFI(high, low, close, volume, 14), MFI(ph, pl, pc, pv, 14)},
		{"adx", ADX(high, low, close, 14), ADX(ph, pl, pc, 14)},
		{"highest_in_5d", Shift(RollingMax(high, 5, 2), 1), Shift(RollingMax(ph, 5, 2), 1)},
	}

	for _, tc := range cases {
		suite.Run(tc.name, func() {
			suite.assertSeriesEqual(tc.original[:k+1], tc.changed[:k+1])
		})
	}
}
