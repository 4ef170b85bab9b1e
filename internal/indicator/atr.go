package indicator

import "math"

// TrueRange is max(high-low, |high-prev_close|, |low-prev_close|) ignoring missing terms,
// so the first bar falls back to high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := NaNs(len(close))
	prevClose := Shift(close, 1)

	for i := range close {
		out[i] = nanMax(
			high[i]-low[i],
			math.Abs(high[i]-prevClose[i]),
			math.Abs(low[i]-prevClose[i]),
		)
	}

	return out
}

// ATR is the rolling mean of the true range with a full-period minimum.
func ATR(high, low, close []float64, period int) []float64 {
	return RollingMean(TrueRange(high, low, close), period, period)
}
