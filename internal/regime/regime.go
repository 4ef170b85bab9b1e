// Package regime classifies a trading day into a market phase and maps each phase
// to its position management parameters.
package regime

import (
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Thresholds decides BULL and SIDEWAY from a market snapshot.
// Comparisons against NaN are false, so missing context never classifies as BULL or SIDEWAY.
type Thresholds struct {
	Name string

	// BullRSIMin requires RSI strictly above it, together with close above MA50 and MA200.
	BullRSIMin float64
	// SidewayADXMax and SidewayWidthMax are strict upper bounds.
	SidewayADXMax   float64
	SidewayWidthMax float64
	// SidewayRSIMin and SidewayRSIMax are inclusive.
	SidewayRSIMin float64
	SidewayRSIMax float64
	// BearRSIMax flags a bear day when RSI is strictly below it or close is below MA200.
	BearRSIMax float64
}

// ScreeningThresholds gate candidate screening. They are the conservative set.
var ScreeningThresholds = Thresholds{
	Name:            "screening",
	BullRSIMin:      55,
	SidewayADXMax:   25,
	SidewayWidthMax: 0.35,
	SidewayRSIMin:   35,
	SidewayRSIMax:   60,
	BearRSIMax:      30,
}

// SimulationThresholds gate the day loop of the simulator.
var SimulationThresholds = Thresholds{
	Name:            "simulation",
	BullRSIMin:      50,
	SidewayADXMax:   20,
	SidewayWidthMax: 0.4,
	SidewayRSIMin:   40,
	SidewayRSIMax:   60,
	BearRSIMax:      30,
}

// IsBull reports close > MA50, close > MA200 and RSI above the bull threshold.
func (t Thresholds) IsBull(m types.MarketSnapshot) bool {
	return m.Close > m.MA50 && m.Close > m.MA200 && m.RSI > t.BullRSIMin
}

// IsSideway reports a low trend strength, narrow band and neutral RSI.
func (t Thresholds) IsSideway(m types.MarketSnapshot) bool {
	return m.ADX < t.SidewayADXMax && m.BollWidth < t.SidewayWidthMax &&
		m.RSI >= t.SidewayRSIMin && m.RSI <= t.SidewayRSIMax
}

// IsBear reports close below MA200 or an oversold RSI. It is evaluated independently
// of the phase: a BULL or SIDEWAY day may still carry the bear flag.
func (t Thresholds) IsBear(m types.MarketSnapshot) bool {
	return m.Close < m.MA200 || m.RSI < t.BearRSIMax
}

// Classify returns BULL, else SIDEWAY, else BEAR.
func Classify(m types.MarketSnapshot, t Thresholds) types.MarketPhase {
	switch {
	case t.IsBull(m):
		return types.MarketPhaseBull
	case t.IsSideway(m):
		return types.MarketPhaseSideway
	default:
		return types.MarketPhaseBear
	}
}

// PhaseParams are the position management parameters of a phase.
type PhaseParams struct {
	PositionMultiplier float64 `yaml:"position_multiplier"`
	MaxHoldDays        int     `yaml:"max_hold_days"`
	LossExitThreshold  float64 `yaml:"loss_exit_threshold"`
	ATRMultiplier      float64 `yaml:"atr_multiplier"`
	PyramidLimit       int     `yaml:"pyramid_limit"`
}

var phaseParams = map[types.MarketPhase]PhaseParams{
	types.MarketPhaseBull: {
		PositionMultiplier: 1.2,
		MaxHoldDays:        45,
		LossExitThreshold:  -0.10,
		ATRMultiplier:      2.0,
		PyramidLimit:       2,
	},
	types.MarketPhaseSideway: {
		PositionMultiplier: 0.5,
		MaxHoldDays:        20,
		LossExitThreshold:  -0.03,
		ATRMultiplier:      1.2,
		PyramidLimit:       1,
	},
	types.MarketPhaseBear: {
		PositionMultiplier: 0.0,
		MaxHoldDays:        15,
		LossExitThreshold:  -0.12,
		ATRMultiplier:      2.2,
		PyramidLimit:       1,
	},
}

// ParamsFor returns the parameters of phase. Unknown phases get the BEAR parameters.
func ParamsFor(phase types.MarketPhase) PhaseParams {
	if p, ok := phaseParams[phase]; ok {
		return p
	}

	return phaseParams[types.MarketPhaseBear]
}
