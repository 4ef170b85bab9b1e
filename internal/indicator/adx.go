package indicator

import "math"

// adxEpsilon keeps the directional index denominator away from zero.
const adxEpsilon = 1e-9

// ADX is the average directional index used for the market series.
// Up moves are the positive part of the high change, down moves the positive
// part of the negated low change.
func ADX(high, low, close []float64, period int) []float64 {
	n := len(close)
	dHigh := Diff(high)
	dLow := Diff(low)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := range close {
		if dHigh[i] > 0 {
			plusDM[i] = dHigh[i]
		}

		if dLow[i] < 0 {
			minusDM[i] = -dLow[i]
		}
	}

	atr := ATR(high, low, close, period)
	plusSum := RollingSum(plusDM, period, period)
	minusSum := RollingSum(minusDM, period, period)
	dx := NaNs(n)

	for i := range close {
		plusDI := 100 * safeDiv(plusSum[i], atr[i])
		minusDI := 100 * safeDiv(minusSum[i], atr[i])

		if math.IsNaN(plusDI) || math.IsNaN(minusDI) {
			continue
		}

		dx[i] = math.Abs(plusDI-minusDI) / (plusDI + minusDI + adxEpsilon) * 100
	}

	return RollingMean(dx, period, period)
}
