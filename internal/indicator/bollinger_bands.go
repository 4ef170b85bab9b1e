package indicator

// Bollinger returns the middle band, the upper and lower bands at numStd sample
// deviations, and the relative width (upper-lower)/middle. Width is NaN when the
// middle band is zero.
func Bollinger(close []float64, period int, numStd float64) (middle, upper, lower, width []float64) {
	middle = RollingMean(close, period, period)
	std := RollingStd(close, period, period)

	upper = NaNs(len(close))
	lower = NaNs(len(close))
	width = NaNs(len(close))

	for i := range close {
		upper[i] = middle[i] + numStd*std[i]
		lower[i] = middle[i] - numStd*std[i]
		width[i] = safeDiv(upper[i]-lower[i], middle[i])
	}

	return middle, upper, lower, width
}
