package provider

import (
	"context"
	"iter"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// Provider streams historical bars for a single ticker.
type Provider interface {
	// Bars yields the aggregates of ticker between start and end, oldest first.
	// A non-nil error ends the sequence. Cancel ctx to stop early.
	Bars(ctx context.Context, ticker string, start time.Time, end time.Time, multiplier int, timespan models.Timespan) iter.Seq2[types.MarketBar, error]
}
