package indicator

import "math"

// OBV is the running sum of volume signed by the close-to-close direction.
// Missing changes and volumes count as zero.
func OBV(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	delta := Diff(close)
	total := 0.0

	for i := range close {
		d := delta[i]
		v := volume[i]

		if math.IsNaN(v) {
			v = 0
		}

		switch {
		case d > 0:
			total += v
		case d < 0:
			total -= v
		}

		out[i] = total
	}

	return out
}
