package datasource

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

// readerFor returns the DuckDB table function able to read path.
func readerFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return fmt.Sprintf("read_parquet('%s')", escapeLiteral(path)), nil
	case ".csv":
		return fmt.Sprintf("read_csv_auto('%s')", escapeLiteral(path)), nil
	default:
		return "", fmt.Errorf("unsupported market data file: %s", path)
	}
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// isNumericType reports whether a DuckDB column type can be read as DOUBLE.
func isNumericType(columnType string) bool {
	t := strings.ToUpper(columnType)
	if strings.HasPrefix(t, "DECIMAL") {
		return true
	}

	switch t {
	case "DOUBLE", "FLOAT", "REAL", "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return true
	default:
		return false
	}
}

func inRange(t time.Time, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && t.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && t.After(end.Unwrap()) {
		return false
	}

	return true
}

func filterTickers(bars []types.MarketBar, tickers []string) []types.MarketBar {
	if len(tickers) == 0 {
		return bars
	}

	allowed := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		allowed[strings.ToUpper(t)] = struct{}{}
	}

	out := bars[:0]

	for _, bar := range bars {
		if _, ok := allowed[strings.ToUpper(bar.Ticker)]; ok {
			out = append(out, bar)
		}
	}

	return out
}
