package indicator

// MACD returns the macd line (EMA fast minus EMA slow), its signal EMA and the histogram.
func MACD(close []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	emaFast := EMA(close, fast)
	emaSlow := EMA(close, slow)

	macd = make([]float64, len(close))
	for i := range close {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signalLine = EMA(macd, signal)

	histogram = make([]float64, len(close))
	for i := range close {
		histogram[i] = macd[i] - signalLine[i]
	}

	return macd, signalLine, histogram
}
