package indicator

import (
	"fmt"
	"math"
	"sync"
)

// Column names produced or consumed by the default derivers.
const (
	ColOpen        = "open"
	ColHigh        = "high"
	ColLow         = "low"
	ColClose       = "close"
	ColVolume      = "volume"
	ColVolumeMA20  = "volume_ma20"
	ColSMA5        = "sma_5"
	ColSMA50       = "sma_50"
	ColSMA200      = "sma_200"
	ColRSI14       = "rsi_14"
	ColVolumeSpike = "volume_spike"
	ColMACD        = "macd"
	ColMACDSignal  = "macd_signal"
	ColATR14       = "atr_14"
	ColBollUpper   = "boll_upper"
	ColBollLower   = "boll_lower"
	ColBollWidth   = "boll_width"
	ColMFI14       = "mfi_14"
	ColOBV         = "obv"
	ColHighestIn5d = "highest_in_5d"
)

// maxVolumeSpike caps volume / volume_ma20.
const maxVolumeSpike = 10.0

// Columns is the per-ticker column store a Deriver reads from and writes to.
type Columns interface {
	Has(name string) bool
	Column(name string) []float64
	Set(name string, values []float64)
}

// Deriver computes one or more output columns from input columns of a single ticker.
type Deriver struct {
	Name    string
	Inputs  []string
	Outputs []string
	// FillMissing writes all-NaN outputs when an input column is absent,
	// instead of leaving the outputs absent.
	FillMissing bool
	Compute     func(inputs [][]float64) [][]float64
}

// Apply runs the deriver when at least one output is absent. Outputs that are
// already present are never overwritten.
func (d Deriver) Apply(cols Columns) {
	missing := false

	for _, out := range d.Outputs {
		if !cols.Has(out) {
			missing = true

			break
		}
	}

	if !missing {
		return
	}

	inputs := make([][]float64, 0, len(d.Inputs))

	for _, in := range d.Inputs {
		if !cols.Has(in) {
			if d.FillMissing {
				d.fillNaN(cols)
			}

			return
		}

		inputs = append(inputs, cols.Column(in))
	}

	results := d.Compute(inputs)
	for i, out := range d.Outputs {
		if !cols.Has(out) {
			cols.Set(out, results[i])
		}
	}
}

func (d Deriver) fillNaN(cols Columns) {
	n := len(cols.Column(ColClose))

	for _, out := range d.Outputs {
		if !cols.Has(out) {
			cols.Set(out, NaNs(n))
		}
	}
}

// Registry keeps derivers in registration order.
type Registry struct {
	derivers map[string]Deriver
	order    []string
	mu       sync.RWMutex
}

// NewRegistry creates an empty deriver registry.
func NewRegistry() *Registry {
	return &Registry{
		derivers: make(map[string]Deriver),
		order:    nil,
		mu:       sync.RWMutex{},
	}
}

// Register adds a deriver to the registry.
func (r *Registry) Register(d Deriver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.derivers[d.Name]; exists {
		return fmt.Errorf("Register: deriver with name %s already registered", d.Name)
	}

	if len(d.Outputs) == 0 || d.Compute == nil {
		return fmt.Errorf("Register: deriver %s needs outputs and a compute function", d.Name)
	}

	r.derivers[d.Name] = d
	r.order = append(r.order, d.Name)

	return nil
}

// Get retrieves a deriver by name.
func (r *Registry) Get(name string) (Deriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.derivers[name]
	if !exists {
		return Deriver{}, fmt.Errorf("Get: deriver with name %s not found", name)
	}

	return d, nil
}

// List returns the registered deriver names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}

// Apply runs every deriver, in registration order, against cols.
func (r *Registry) Apply(cols Columns) {
	r.mu.RLock()
	derivers := make([]Deriver, 0, len(r.order))

	for _, name := range r.order {
		derivers = append(derivers, r.derivers[name])
	}
	r.mu.RUnlock()

	for _, d := range derivers {
		d.Apply(cols)
	}
}

// NewDefaultRegistry registers the per-ticker indicator columns used by the screener
// and the simulator.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	for _, d := range defaultDerivers() {
		// names are unique by construction
		_ = r.Register(d)
	}

	return r
}

func defaultDerivers() []Deriver {
	return []Deriver{
		{
			Name: ColVolumeMA20, Inputs: []string{ColVolume}, Outputs: []string{ColVolumeMA20},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{RollingMean(in[0], 20, 20)} },
		},
		{
			Name: ColSMA5, Inputs: []string{ColClose}, Outputs: []string{ColSMA5},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{SMA(in[0], 5, 5)} },
		},
		{
			Name: ColSMA50, Inputs: []string{ColClose}, Outputs: []string{ColSMA50},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{SMA(in[0], 50, 20)} },
		},
		{
			Name: ColSMA200, Inputs: []string{ColClose}, Outputs: []string{ColSMA200},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{SMA(in[0], 200, 50)} },
		},
		{
			Name: ColRSI14, Inputs: []string{ColClose}, Outputs: []string{ColRSI14},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{RSI(in[0], DefaultRSIPeriod)} },
		},
		{
			Name: ColVolumeSpike, Inputs: []string{ColVolume, ColVolumeMA20}, Outputs: []string{ColVolumeSpike},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{VolumeSpike(in[0], in[1])} },
		},
		{
			Name: ColMACD, Inputs: []string{ColClose}, Outputs: []string{ColMACD, ColMACDSignal},
			Compute: func(in [][]float64) [][]float64 {
				macd, signal, _ := MACD(in[0], 12, 26, 9)

				return [][]float64{macd, signal}
			},
		},
		{
			Name: ColATR14, Inputs: []string{ColHigh, ColLow, ColClose}, Outputs: []string{ColATR14},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{ATR(in[0], in[1], in[2], 14)} },
		},
		{
			Name: ColBollWidth, Inputs: []string{ColClose}, Outputs: []string{ColBollWidth, ColBollUpper, ColBollLower},
			Compute: func(in [][]float64) [][]float64 {
				_, upper, lower, width := Bollinger(in[0], 20, 2)

				return [][]float64{width, upper, lower}
			},
		},
		{
			Name: ColMFI14, Inputs: []string{ColHigh, ColLow, ColClose, ColVolume}, Outputs: []string{ColMFI14},
			FillMissing: true,
			Compute: func(in [][]float64) [][]float64 {
				return [][]float64{MFI(in[0], in[1], in[2], in[3], 14)}
			},
		},
		{
			Name: ColOBV, Inputs: []string{ColClose, ColVolume}, Outputs: []string{ColOBV},
			FillMissing: true,
			Compute:     func(in [][]float64) [][]float64 { return [][]float64{OBV(in[0], in[1])} },
		},
		{
			Name: ColHighestIn5d, Inputs: []string{ColHigh}, Outputs: []string{ColHighestIn5d},
			Compute: func(in [][]float64) [][]float64 { return [][]float64{Shift(RollingMax(in[0], 5, 2), 1)} },
		},
	}
}

// VolumeSpike is volume / volume_ma20 capped at 10; a zero average yields NaN.
func VolumeSpike(volume, volumeMA20 []float64) []float64 {
	out := NaNs(len(volume))

	for i := range volume {
		v := safeDiv(volume[i], volumeMA20[i])
		if math.IsNaN(v) {
			continue
		}

		out[i] = math.Min(v, maxVolumeSpike)
	}

	return out
}
