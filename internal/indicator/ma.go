package indicator

// SMA is a simple moving average with a minimum period floor.
// sma_50 for instance is allowed from 20 observations.
func SMA(close []float64, period, minPeriods int) []float64 {
	return RollingMean(close, period, minPeriods)
}
