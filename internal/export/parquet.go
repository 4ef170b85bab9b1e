package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// WriteParquet writes the records to path through an in-memory DuckDB table.
func WriteParquet(ctx context.Context, path string, records []types.SignalRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create output directory", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to open duckdb", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE signals (
			date DATE,
			signal_type TEXT,
			ticker TEXT,
			price DOUBLE,
			shares BIGINT,
			holding_days INTEGER,
			exit_type TEXT,
			profit DOUBLE,
			profit_pct DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create signals table", err)
	}

	if len(records) > 0 {
		insert := squirrel.Insert("signals").Columns(types.SignalColumns...)

		for _, r := range records {
			var price, profit, pct any
			if r.Price.IsSome() {
				price = r.Price.Unwrap().InexactFloat64()
			}

			if r.Profit.IsSome() {
				profit = r.Profit.Unwrap().InexactFloat64()
			}

			if r.ProfitPct.IsSome() {
				pct = r.ProfitPct.Unwrap().InexactFloat64()
			}

			insert = insert.Values(
				r.Date, string(r.SignalType), r.Ticker, price,
				r.Shares, r.HoldingDays, string(r.ExitType), profit, pct,
			)
		}

		if _, err := insert.RunWith(db).ExecContext(ctx); err != nil {
			return errors.Wrap(errors.ErrCodeExportFailed, "failed to insert signals", err)
		}
	}

	query := fmt.Sprintf(
		"COPY (SELECT * FROM signals) TO '%s' (FORMAT PARQUET)",
		strings.ReplaceAll(path, "'", "''"),
	)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write parquet", err)
	}

	return nil
}
