package utils

import (
	"math"

	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/commission_fee"
)

// RoundDownToLot truncates quantity to a whole number of lots. NaN, infinite and
// non-positive quantities round to 0.
func RoundDownToLot(quantity float64, lotSize int64) int64 {
	if lotSize <= 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity <= 0 {
		return 0
	}

	return int64(quantity/float64(lotSize)) * lotSize
}

// CalculateEntryShares sizes a buy: the shares investment can fund after the buy
// commission, capped by a fraction of the 20 day average volume, rounded down to lots.
func CalculateEntryShares(
	investment float64,
	price float64,
	commissionFee commission_fee.CommissionFee,
	volumeMA20 float64,
	tradeLimitPct float64,
	lotSize int64,
) int64 {
	if price <= 0 || math.IsNaN(price) {
		return 0
	}

	intended := investment / (1 + commissionFee.BuyRate()) / price
	capped := math.Min(intended, volumeMA20*tradeLimitPct)

	// math.Min propagates NaN from a missing volume average
	if math.IsNaN(capped) {
		return 0
	}

	return RoundDownToLot(capped, lotSize)
}

// CalculateSellShares returns the shares to liquidate from a position: everything,
// or the lot-rounded partial fraction, never less than one lot when the position holds one.
func CalculateSellShares(held int64, partial bool, partialPct float64, lotSize int64) int64 {
	sell := held
	if partial {
		sell = RoundDownToLot(float64(held)*partialPct, lotSize)
	}

	floor := held
	if held >= lotSize {
		floor = lotSize
	}

	return max(floor, sell)
}
