package screener

import (
	"math"
	"sort"

	"github.com/rxtech-lab/argo-signals/internal/types"
)

// DefaultBaselineVolumeMA20 is the weekly watchlist liquidity floor.
const DefaultBaselineVolumeMA20 = 100000

// BaselineWatchlist returns the tickers of a weekly snapshot that hold a confirmed
// uptrend: liquid, above both long averages, RSI in (55, 75) and volume_spike > 0.5.
// The market filter applies only when the snapshot carries market context.
func BaselineWatchlist(snapshot []types.IndicatorRow, minVolumeMA20 float64) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)

	for _, row := range snapshot {
		if !(row.VolumeMA20 > minVolumeMA20 && row.Volume > 200000) {
			continue
		}

		if !math.IsNaN(row.Market.Close) && !(row.Market.Close > row.Market.MA200) {
			continue
		}

		if !(row.Close > row.SMA200 && row.Close > row.SMA50 && row.RSI14 > 55 && row.RSI14 < 75) {
			continue
		}

		if !(row.VolumeSpike > 0.5) {
			continue
		}

		if _, dup := seen[row.Ticker]; dup {
			continue
		}

		seen[row.Ticker] = struct{}{}
		out = append(out, row.Ticker)
	}

	sort.Strings(out)

	return out
}

// BreakoutTriggers keeps the rows closing above the prior five-day high on a volume spike.
func BreakoutTriggers(latest []types.IndicatorRow, watchlist []string) []types.IndicatorRow {
	allowed := make(map[string]struct{}, len(watchlist))
	for _, ticker := range watchlist {
		allowed[ticker] = struct{}{}
	}

	out := make([]types.IndicatorRow, 0)

	for _, row := range latest {
		if _, ok := allowed[row.Ticker]; !ok {
			continue
		}

		if row.Close > row.HighestIn5d && row.VolumeSpike > 0.5 {
			out = append(out, row)
		}
	}

	return out
}
