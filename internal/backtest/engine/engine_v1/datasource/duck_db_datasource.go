package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"go.uber.org/zap"
)

type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType

	tickerColumn string
	numeric      []string
}

// NewDataSource creates a new DuckDB data source instance with the specified database path.
// The path parameter specifies the DuckDB database file location, usually ":memory:".
// This is distinct from Initialize() which attaches the market data file.
func NewDataSource(path string, logger *logger.Logger) (DataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	_, err = db.Exec(`
		SET memory_limit='4GB';
		SET threads=4;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to set DuckDB optimizations: %w", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize implements DataSource.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	reader, err := readerFor(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to initialize data source", err)
	}

	_, err = d.db.Exec(`DROP VIEW IF EXISTS market_data;`)
	if err != nil {
		return fmt.Errorf("failed to drop existing view: %w", err)
	}

	// Squirrel doesn't support CREATE VIEW
	_, err = d.db.Exec(fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM %s;`, reader))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to read %s", path)
	}

	return d.describe()
}

// describe inspects the view and records the ticker column and the numeric columns.
func (d *DuckDBDataSource) describe() error {
	query, args, err := d.sq.
		Select("column_name", "data_type").
		From("information_schema.columns").
		Where(squirrel.Eq{"table_name": "market_data"}).
		OrderBy("ordinal_position").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to describe market data", err)
	}
	defer rows.Close()

	hasTime := false
	d.tickerColumn = ""
	d.numeric = nil

	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		switch name {
		case ColumnTime:
			hasTime = true
		case ColumnTicker:
			d.tickerColumn = ColumnTicker
		case ColumnSymbol:
			if d.tickerColumn == "" {
				d.tickerColumn = ColumnSymbol
			}
		default:
			if isNumericType(dataType) {
				d.numeric = append(d.numeric, name)
			}
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns: %w", err)
	}

	if !hasTime {
		return errors.New(errors.ErrCodeMissingDatetime, "market data has no time column")
	}

	if d.tickerColumn == "" {
		return errors.NewMissingColumnsError([]string{ColumnTicker})
	}

	d.logger.Debug("Described market data",
		zap.String("ticker_column", d.tickerColumn),
		zap.Strings("numeric_columns", d.numeric))

	return nil
}

// Columns implements DataSource.
func (d *DuckDBDataSource) Columns() []string {
	out := make([]string, len(d.numeric))
	copy(out, d.numeric)

	return out
}

func (d *DuckDBDataSource) rangeFilter(start optional.Option[time.Time], end optional.Option[time.Time]) squirrel.And {
	conditions := squirrel.And{}

	if start.IsSome() {
		conditions = append(conditions, squirrel.GtOrEq{ColumnTime: start.Unwrap()})
	}

	if end.IsSome() {
		conditions = append(conditions, squirrel.LtOrEq{ColumnTime: end.Unwrap()})
	}

	return conditions
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	builder := d.sq.Select("COUNT(*)").From("market_data")

	if conditions := d.rangeFilter(start, end); len(conditions) > 0 {
		builder = builder.Where(conditions)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}

	return count, nil
}

// ReadAll implements DataSource. Every numeric column of the file is carried on the bar:
// open, high and low as optional fields, everything else in Extras with NaN for NULL.
func (d *DuckDBDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketBar, error) bool) {
	return func(yield func(types.MarketBar, error) bool) {
		d.logger.Debug("Reading all data from DuckDB")

		columns := []string{
			fmt.Sprintf("CAST(%s AS TIMESTAMP) AS %s", ColumnTime, ColumnTime),
			fmt.Sprintf("UPPER(CAST(%s AS VARCHAR)) AS %s", quoteIdent(d.tickerColumn), ColumnTicker),
		}

		for _, name := range d.numeric {
			columns = append(columns, fmt.Sprintf("CAST(%s AS DOUBLE) AS %s", quoteIdent(name), quoteIdent(name)))
		}

		builder := d.sq.Select(columns...).From("market_data")
		if conditions := d.rangeFilter(start, end); len(conditions) > 0 {
			builder = builder.Where(conditions)
		}

		query, args, err := builder.OrderBy(ColumnTime+" ASC", ColumnTicker+" ASC").ToSql()
		if err != nil {
			yield(types.MarketBar{}, fmt.Errorf("failed to build query: %w", err))

			return
		}

		rows, err := d.db.Query(query, args...)
		if err != nil {
			yield(types.MarketBar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query market data", err))

			return
		}
		defer rows.Close()

		var (
			timestamp sql.NullTime
			ticker    sql.NullString
		)

		values := make([]sql.NullFloat64, len(d.numeric))
		dest := make([]any, 0, len(d.numeric)+2)
		dest = append(dest, &timestamp, &ticker)

		for i := range values {
			dest = append(dest, &values[i])
		}

		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				yield(types.MarketBar{}, fmt.Errorf("failed to scan row: %w", err))

				return
			}

			if !timestamp.Valid {
				yield(types.MarketBar{}, errors.Newf(errors.ErrCodeMissingDatetime, "row for %s has no time", ticker.String))

				return
			}

			if !yield(d.toBar(timestamp.Time, ticker.String, values), nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.MarketBar{}, fmt.Errorf("error iterating rows: %w", err))
		}
	}
}

func (d *DuckDBDataSource) toBar(timestamp time.Time, ticker string, values []sql.NullFloat64) types.MarketBar {
	bar := types.MarketBar{
		Ticker: ticker,
		Time:   timestamp,
		Open:   optional.None[float64](),
		High:   optional.None[float64](),
		Low:    optional.None[float64](),
		Close:  math.NaN(),
		Volume: math.NaN(),
		Extras: make(map[string]float64),
	}

	for i, name := range d.numeric {
		v := values[i]

		switch name {
		case ColumnOpen:
			if v.Valid {
				bar.Open = optional.Some(v.Float64)
			}
		case ColumnHigh:
			if v.Valid {
				bar.High = optional.Some(v.Float64)
			}
		case ColumnLow:
			if v.Valid {
				bar.Low = optional.Some(v.Float64)
			}
		case ColumnClose:
			if v.Valid {
				bar.Close = v.Float64
			}
		case ColumnVolume:
			if v.Valid {
				bar.Volume = v.Float64
			}
		default:
			if v.Valid {
				bar.Extras[name] = v.Float64
			} else {
				bar.Extras[name] = math.NaN()
			}
		}
	}

	return bar
}

// ReadBars implements DataSource.
func (d *DuckDBDataSource) ReadBars(start optional.Option[time.Time], end optional.Option[time.Time], tickers []string) ([]types.MarketBar, error) {
	bars := make([]types.MarketBar, 0, 1024)

	for bar, err := range d.ReadAll(start, end) {
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return filterTickers(bars, tickers), nil
}

// LatestTime implements DataSource.
func (d *DuckDBDataSource) LatestTime() (time.Time, error) {
	query, args, err := d.sq.
		Select(fmt.Sprintf("MAX(CAST(%s AS TIMESTAMP))", ColumnTime)).
		From("market_data").
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build query: %w", err)
	}

	var latest sql.NullTime
	if err := d.db.QueryRow(query, args...).Scan(&latest); err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read latest time", err)
	}

	if !latest.Valid {
		return time.Time{}, errors.New(errors.ErrCodeNoDataFound, "market data is empty")
	}

	return latest.Time, nil
}

// Tickers implements DataSource.
func (d *DuckDBDataSource) Tickers() ([]string, error) {
	query, args, err := d.sq.
		Select(fmt.Sprintf("DISTINCT UPPER(CAST(%s AS VARCHAR)) AS ticker", quoteIdent(d.tickerColumn))).
		From("market_data").
		OrderBy("ticker").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string

	for rows.Next() {
		var ticker sql.NullString
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}

		if ticker.Valid {
			tickers = append(tickers, ticker.String)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}

// ExecuteSQL implements DataSource.
func (d *DuckDBDataSource) ExecuteSQL(query string, params ...interface{}) ([]SQLResult, error) {
	d.logger.Debug("Executing SQL query", zap.String("query", query))

	stmt, err := d.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := make([]SQLResult, 0)

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]interface{})
		for i, col := range columns {
			rowMap[col] = values[i]
		}

		result = append(result, SQLResult{Values: rowMap})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}
