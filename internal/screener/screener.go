// Package screener ranks one day's cross-section of tickers into entry candidates.
package screener

import (
	"math"
	"sort"

	"github.com/rxtech-lab/argo-signals/internal/regime"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

const (
	// marketReturnEpsilon guards the relative strength denominator.
	marketReturnEpsilon = 1e-6
	// minDailyVolume is the hard liquidity floor on the current bar.
	minDailyVolume = 300000
	// minSidewayCandidates is the lower bound of the halved sideway cap.
	minSidewayCandidates = 5
)

// Config holds the screening parameters.
type Config struct {
	MinVolumeMA20 float64 `yaml:"min_volume_ma20" json:"min_volume_ma20"`
	MaxCandidates int     `yaml:"max_candidates"  json:"max_candidates"`
}

// DefaultConfig returns the screening defaults used by the backtest.
func DefaultConfig() Config {
	return Config{
		MinVolumeMA20: 200000,
		MaxCandidates: 20,
	}
}

// Screen returns the ranked candidates of one day. rows holds one row per ticker and
// the market context is read from the first row. The result is empty when the market
// is neither BULL nor SIDEWAY under the screening thresholds or no ticker qualifies.
func Screen(rows []types.IndicatorRow, cfg Config) []types.Candidate {
	if len(rows) == 0 {
		return nil
	}

	market := rows[0].Market
	thresholds := regime.ScreeningThresholds
	isBull := thresholds.IsBull(market)

	if !isBull && !thresholds.IsSideway(market) {
		return nil
	}

	marketExcess := (market.Close-market.MA50)/market.MA50 + marketReturnEpsilon
	candidates := make([]types.Candidate, 0)
	limit := cfg.MaxCandidates

	if !isBull {
		limit = max(minSidewayCandidates, int(float64(cfg.MaxCandidates)*0.5))
	}

	for _, row := range rows {
		if !(row.VolumeMA20 > cfg.MinVolumeMA20 && row.Volume > minDailyVolume) {
			continue
		}

		closeAdj := row.AdjustedClose()
		c := types.Candidate{
			Ticker:           row.Ticker,
			Close:            closeAdj,
			RelativeStrength: ((closeAdj - row.SMA50) / row.SMA50) / marketExcess,
			ShortMomentum:    (closeAdj - row.SMA5) / row.SMA5,
			MACDHistogram:    row.MACDHistogram(),
			Row:              row,
		}

		if isBull {
			if !passesBull(row, c) {
				continue
			}

			c.Phase = types.MarketPhaseBull
			c.Score = c.RelativeStrength*0.35 + c.ShortMomentum*0.25 + row.VolumeSpike*0.25 + c.MACDHistogram*0.15
		} else {
			if !passesSideway(row, c) {
				continue
			}

			c.Phase = types.MarketPhaseSideway
			c.BollProximity = (closeAdj - row.SMA50) / (row.SMA50 * row.BollWidth)
			c.Score = row.VolumeSpike*0.4 + c.MACDHistogram*0.3 + (55-math.Abs(row.RSI14-55))*0.2 + c.BollProximity*0.1
		}

		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
			continue
		}

		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}

		return candidates[i].Ticker < candidates[j].Ticker
	})

	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates
}

func passesBull(row types.IndicatorRow, c types.Candidate) bool {
	return c.Close > row.SMA200 &&
		c.Close > row.SMA50 &&
		row.SMA50 > row.SMA200 &&
		row.RSI14 > 50 && row.RSI14 < 80 &&
		row.VolumeSpike > 0.3 &&
		c.RelativeStrength > 1.05 &&
		c.ShortMomentum > 0.01 &&
		c.Close > row.SMA5
}

func passesSideway(row types.IndicatorRow, c types.Candidate) bool {
	return row.RSI14 > 48 && row.RSI14 < 55 &&
		row.BollWidth < 0.3 &&
		c.MACDHistogram > 0 &&
		row.VolumeSpike >= 1.0 &&
		c.ShortMomentum > 0.02 &&
		row.ATR14/c.Close > 0.02 &&
		c.Close > row.SMA50*0.95 &&
		c.Close > row.SMA200*0.95 &&
		c.Close > row.SMA50+row.BollWidth*row.SMA50*0.75
}
