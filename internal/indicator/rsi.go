package indicator

import "math"

// DefaultRSIPeriod is the look back used for rsi_14 and market_rsi.
const DefaultRSIPeriod = 14

// RSI is the relative strength index built from simple rolling means of gains and
// losses. The first change counts as zero. A window without losses yields NaN,
// callers decide how to fill it.
func RSI(close []float64, period int) []float64 {
	delta := Diff(close)
	gains := make([]float64, len(close))
	losses := make([]float64, len(close))

	for i, d := range delta {
		switch {
		case d > 0:
			gains[i] = d
		case d < 0:
			losses[i] = -d
		}
	}

	avgGain := RollingMean(gains, period, period)
	avgLoss := RollingMean(losses, period, period)
	out := NaNs(len(close))

	for i := range close {
		rs := safeDiv(avgGain[i], avgLoss[i])
		if math.IsNaN(rs) {
			continue
		}

		out[i] = 100 - 100/(1+rs)
	}

	return out
}
