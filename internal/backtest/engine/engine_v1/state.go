package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BacktestState is the trade ledger of one engine, kept in an in-memory DuckDB.
// Every run gets a fresh run id; the tables are reset by Cleanup.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
	runID  string
	seq    int64
}

func NewBacktestState(logger *logger.Logger) (*BacktestState, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))

		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to open backtest ledger", err)
	}

	return &BacktestState{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		runID:  uuid.New().String(),
		seq:    0,
	}, nil
}

// Initialize creates the ledger tables
func (b *BacktestState) Initialize() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT,
			seq BIGINT,
			ticker TEXT,
			entry_date TIMESTAMP,
			exit_date TIMESTAMP,
			entry_price DOUBLE,
			exit_price DOUBLE,
			shares BIGINT,
			profit DOUBLE,
			holding_days INTEGER,
			exit_type TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS days (
			run_id TEXT,
			date TIMESTAMP,
			phase TEXT,
			working_capital DOUBLE,
			open_positions INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create days table: %w", err)
	}

	return nil
}

// RunID returns the id of the current run.
func (b *BacktestState) RunID() string {
	return b.runID
}

// RecordTrade appends a completed trade to the ledger.
func (b *BacktestState) RecordTrade(trade types.Trade) error {
	b.seq++

	_, err := b.sq.
		Insert("trades").
		Columns(
			"run_id", "seq", "ticker", "entry_date", "exit_date", "entry_price", "exit_price",
			"shares", "profit", "holding_days", "exit_type",
		).
		Values(
			b.runID, b.seq, trade.Ticker, trade.EntryDate, trade.ExitDate, trade.EntryPrice, trade.ExitPrice,
			trade.Shares, trade.Profit, trade.HoldingDays, string(trade.ExitType),
		).
		RunWith(b.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert trade", err)
	}

	return nil
}

// RecordDay stores the regime and capital of a simulated date.
func (b *BacktestState) RecordDay(date time.Time, phase types.MarketPhase, workingCapital float64, openPositions int) error {
	_, err := b.sq.
		Insert("days").
		Columns("run_id", "date", "phase", "working_capital", "open_positions").
		Values(b.runID, date, string(phase), workingCapital, openPositions).
		RunWith(b.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert day", err)
	}

	return nil
}

// GetAllTrades returns the trades of the current run in emission order
func (b *BacktestState) GetAllTrades() ([]types.Trade, error) {
	rows, err := b.sq.
		Select(
			"ticker", "entry_date", "exit_date", "entry_price", "exit_price",
			"shares", "profit", "holding_days", "exit_type",
		).
		From("trades").
		Where(squirrel.Eq{"run_id": b.runID}).
		OrderBy("seq ASC").
		RunWith(b.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	trades := make([]types.Trade, 0)

	for rows.Next() {
		var (
			trade    types.Trade
			exitType string
		)

		if err := rows.Scan(
			&trade.Ticker,
			&trade.EntryDate,
			&trade.ExitDate,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Shares,
			&trade.Profit,
			&trade.HoldingDays,
			&exitType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.ExitType = types.ExitType(exitType)
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// Stats aggregates the ledger of the current run. Run level fields (dates, capital,
// file paths) are filled by the caller.
func (b *BacktestState) Stats() (types.BacktestStats, error) {
	stats := types.BacktestStats{
		ID:        b.runID,
		Timestamp: time.Now(),
		PhaseDays: make(map[types.MarketPhase]int),
		ExitTypes: make(map[types.ExitType]int),
	}

	var err error

	if stats.TradeResult, err = b.calculateTradeResult(); err != nil {
		return stats, err
	}

	if stats.TradeHoldingTime, err = b.calculateTradeHoldingTime(); err != nil {
		return stats, err
	}

	if stats.TradePnl, err = b.calculateTradePnl(); err != nil {
		return stats, err
	}

	if err := b.countBy("days", "phase", func(key string, n int) {
		stats.PhaseDays[types.MarketPhase(key)] = n
		stats.TradingDays += n
	}); err != nil {
		return stats, err
	}

	if err := b.countBy("trades", "exit_type", func(key string, n int) {
		stats.ExitTypes[types.ExitType(key)] = n
	}); err != nil {
		return stats, err
	}

	return stats, nil
}

func (b *BacktestState) calculateTradeResult() (types.TradeResult, error) {
	var result types.TradeResult

	err := b.sq.
		Select(
			"COUNT(*)",
			"COUNT(CASE WHEN profit > 0 THEN 1 END)",
			"COUNT(CASE WHEN profit < 0 THEN 1 END)",
		).
		From("trades").
		Where(squirrel.Eq{"run_id": b.runID}).
		RunWith(b.db).
		QueryRow().
		Scan(&result.NumberOfTrades, &result.NumberOfWinningTrades, &result.NumberOfLosingTrades)
	if err != nil {
		return types.TradeResult{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to calculate trade result", err)
	}

	if result.NumberOfTrades > 0 {
		result.WinRate = float64(result.NumberOfWinningTrades) / float64(result.NumberOfTrades)
	}

	return result, nil
}

func (b *BacktestState) calculateTradeHoldingTime() (types.TradeHoldingTime, error) {
	var holdingTime types.TradeHoldingTime

	err := b.sq.
		Select(
			"COALESCE(MIN(holding_days), 0)",
			"COALESCE(MAX(holding_days), 0)",
			"COALESCE(AVG(holding_days), 0.0)",
		).
		From("trades").
		Where(squirrel.Eq{"run_id": b.runID}).
		RunWith(b.db).
		QueryRow().
		Scan(&holdingTime.Min, &holdingTime.Max, &holdingTime.Avg)
	if err != nil {
		return types.TradeHoldingTime{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to calculate holding time", err)
	}

	return holdingTime, nil
}

// calculateTradePnl sums profits in decimal.
func (b *BacktestState) calculateTradePnl() (types.TradePnl, error) {
	rows, err := b.sq.
		Select("profit").
		From("trades").
		Where(squirrel.Eq{"run_id": b.runID}).
		OrderBy("seq ASC").
		RunWith(b.db).
		Query()
	if err != nil {
		return types.TradePnl{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query profits", err)
	}
	defer rows.Close()

	var (
		pnl      types.TradePnl
		realized = decimal.Zero
		first    = true
	)

	for rows.Next() {
		var profit float64
		if err := rows.Scan(&profit); err != nil {
			return types.TradePnl{}, fmt.Errorf("failed to scan profit: %w", err)
		}

		realized = realized.Add(decimal.NewFromFloat(profit))

		if first || profit < pnl.MaximumLoss {
			pnl.MaximumLoss = profit
		}

		if first || profit > pnl.MaximumProfit {
			pnl.MaximumProfit = profit
		}

		first = false
	}

	if err := rows.Err(); err != nil {
		return types.TradePnl{}, fmt.Errorf("error iterating profits: %w", err)
	}

	pnl.RealizedPnL = realized.InexactFloat64()

	return pnl, nil
}

func (b *BacktestState) countBy(table string, column string, add func(key string, n int)) error {
	rows, err := b.sq.
		Select(column, "COUNT(*)").
		From(table).
		Where(squirrel.Eq{"run_id": b.runID}).
		GroupBy(column).
		OrderBy(column).
		RunWith(b.db).
		Query()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to count %s by %s", table, column)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)

		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}

		add(key, n)
	}

	return rows.Err()
}

// Write exports the trades of the current run to <path>/trades.parquet and returns the file path.
func (b *BacktestState) Write(path string) (string, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tradesPath := filepath.Join(path, "trades.parquet")

	// COPY is not expressible with squirrel
	query := fmt.Sprintf(
		`COPY (SELECT ticker, entry_date, exit_date, entry_price, exit_price, shares, profit, holding_days, exit_type
		FROM trades WHERE run_id = '%s' ORDER BY seq) TO '%s' (FORMAT PARQUET)`,
		b.runID, strings.ReplaceAll(tradesPath, "'", "''"),
	)

	if _, err := b.db.Exec(query); err != nil {
		return "", errors.Wrap(errors.ErrCodeExportFailed, "failed to export trades to parquet", err)
	}

	b.logger.Info("Exported backtest trades",
		zap.String("run_id", b.runID),
		zap.String("trades", tradesPath),
	)

	return tradesPath, nil
}

// Cleanup drops the ledger tables and starts a new run id.
func (b *BacktestState) Cleanup() error {
	_, err := b.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS days;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	b.runID = uuid.New().String()
	b.seq = 0

	return b.Initialize()
}

// Close releases the database.
func (b *BacktestState) Close() error {
	return b.db.Close()
}
