package indicator

import "math"

// EMA is an exponential moving average with alpha = 2/(span+1), seeded with the
// first non-missing value and without bias adjustment. A missing input carries the
// previous average forward.
func EMA(x []float64, span int) []float64 {
	out := NaNs(len(x))
	alpha := 2.0 / (float64(span) + 1.0)
	prev := math.NaN()

	for i, v := range x {
		switch {
		case math.IsNaN(v):
			out[i] = prev
		case math.IsNaN(prev):
			prev = v
			out[i] = v
		default:
			prev = alpha*v + (1-alpha)*prev
			out[i] = prev
		}
	}

	return out
}
