package indicator

import "math"

// MFI is the money flow index: typical price weighted volume split into positive
// and negative flow by the direction of the typical price, summed over the window
// and mapped onto 0..100 like RSI. A window without negative flow yields NaN.
func MFI(high, low, close, volume []float64, period int) []float64 {
	n := len(close)
	typical := make([]float64, n)
	flow := make([]float64, n)

	for i := range close {
		typical[i] = (high[i] + low[i] + close[i]) / 3
		flow[i] = typical[i] * volume[i]
	}

	delta := Diff(typical)
	pos := make([]float64, n)
	neg := make([]float64, n)

	for i, d := range delta {
		switch {
		case d > 0:
			pos[i] = flow[i]
		case d < 0:
			neg[i] = flow[i]
		}
	}

	posSum := RollingSum(pos, period, period)
	negSum := RollingSum(neg, period, period)
	out := NaNs(n)

	for i := range close {
		ratio := safeDiv(posSum[i], negSum[i])
		if math.IsNaN(ratio) {
			continue
		}

		out[i] = 100 - 100/(1+ratio)
	}

	return out
}
