package writer

import (
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// MarketDataWriter writes market bars to a destination.
type MarketDataWriter interface {
	// Initialize sets up the writer, creating tables or files.
	Initialize() error
	// Write persists a single bar.
	Write(bar types.MarketBar) error
	// Finalize commits pending rows and exports the output file.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}

// Columns lists the columns of the exported market table in order.
var Columns = []string{
	"time", "ticker", "open", "high", "low", "close", "volume",
	types.FieldMarketClose, types.FieldMarketHigh, types.FieldMarketLow,
}
