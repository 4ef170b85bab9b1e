package types

// MarketPhase is the discrete market regime of a calendar date.
type MarketPhase string

const (
	MarketPhaseBull    MarketPhase = "BULL"
	MarketPhaseSideway MarketPhase = "SIDEWAY"
	MarketPhaseBear    MarketPhase = "BEAR"
)

// Candidate is a ticker that survived the daily screen, ranked by Score.
type Candidate struct {
	Ticker string      `yaml:"ticker"`
	Phase  MarketPhase `yaml:"phase"`
	Score  float64     `yaml:"score"`
	Close  float64     `yaml:"close"`

	RelativeStrength float64 `yaml:"relative_strength"`
	ShortMomentum    float64 `yaml:"short_momentum"`
	MACDHistogram    float64 `yaml:"macd_histogram"`
	// BollProximity is only set for sideway candidates.
	BollProximity float64 `yaml:"boll_proximity"`

	// Row is the snapshot the candidate was scored from.
	Row IndicatorRow `yaml:"-"`
}
