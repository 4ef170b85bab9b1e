// Package indicator computes technical indicators over ordered per-ticker series.
//
// Every function is pure: output index i depends only on inputs at indices <= i.
// NaN marks a missing value. Window functions emit NaN until at least minPeriods
// non-missing observations fall inside the window.
package indicator

import (
	"math"
)

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}

	return out
}

func windowStart(i, window int) int {
	start := i - window + 1
	if start < 0 {
		return 0
	}

	return start
}

// RollingMean is the mean of the non-missing values in the trailing window.
func RollingMean(x []float64, window, minPeriods int) []float64 {
	out := NaNs(len(x))

	for i := range x {
		sum, n := 0.0, 0

		for j := windowStart(i, window); j <= i; j++ {
			if !math.IsNaN(x[j]) {
				sum += x[j]
				n++
			}
		}

		if n >= minPeriods && n > 0 {
			out[i] = sum / float64(n)
		}
	}

	return out
}

// RollingSum is the sum of the non-missing values in the trailing window.
func RollingSum(x []float64, window, minPeriods int) []float64 {
	out := NaNs(len(x))

	for i := range x {
		sum, n := 0.0, 0

		for j := windowStart(i, window); j <= i; j++ {
			if !math.IsNaN(x[j]) {
				sum += x[j]
				n++
			}
		}

		if n >= minPeriods && n > 0 {
			out[i] = sum
		}
	}

	return out
}

// RollingStd is the sample standard deviation (ddof=1) over the trailing window.
func RollingStd(x []float64, window, minPeriods int) []float64 {
	out := NaNs(len(x))

	for i := range x {
		sum, n := 0.0, 0

		start := windowStart(i, window)
		for j := start; j <= i; j++ {
			if !math.IsNaN(x[j]) {
				sum += x[j]
				n++
			}
		}

		if n < minPeriods || n < 2 {
			continue
		}

		mean := sum / float64(n)
		ss := 0.0

		for j := start; j <= i; j++ {
			if !math.IsNaN(x[j]) {
				d := x[j] - mean
				ss += d * d
			}
		}

		out[i] = math.Sqrt(ss / float64(n-1))
	}

	return out
}

// RollingMax is the maximum of the non-missing values in the trailing window.
func RollingMax(x []float64, window, minPeriods int) []float64 {
	out := NaNs(len(x))

	for i := range x {
		best, n := math.Inf(-1), 0

		for j := windowStart(i, window); j <= i; j++ {
			if !math.IsNaN(x[j]) {
				best = math.Max(best, x[j])
				n++
			}
		}

		if n >= minPeriods && n > 0 {
			out[i] = best
		}
	}

	return out
}

// Shift moves values forward by n positions, padding the head with NaN.
func Shift(x []float64, n int) []float64 {
	out := NaNs(len(x))

	for i := n; i < len(x); i++ {
		out[i] = x[i-n]
	}

	return out
}

// Diff is x[i] - x[i-1]; the first element is NaN.
func Diff(x []float64) []float64 {
	out := NaNs(len(x))

	for i := 1; i < len(x); i++ {
		out[i] = x[i] - x[i-1]
	}

	return out
}

// ForwardFill replaces NaN with the last non-missing value seen before it.
func ForwardFill(x []float64) []float64 {
	out := make([]float64, len(x))
	last := math.NaN()

	for i, v := range x {
		if !math.IsNaN(v) {
			last = v
		}

		out[i] = last
	}

	return out
}

// FillNaN replaces every NaN with value.
func FillNaN(x []float64, value float64) []float64 {
	out := make([]float64, len(x))

	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = value
		} else {
			out[i] = v
		}
	}

	return out
}

// nanMax is the maximum of the non-missing arguments, NaN when all are missing.
func nanMax(values ...float64) float64 {
	best := math.NaN()

	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}

		if math.IsNaN(best) || v > best {
			best = v
		}
	}

	return best
}

// safeDiv returns NaN when the denominator is zero or missing.
func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) {
		return math.NaN()
	}

	return num / den
}
