package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ExportTestSuite struct {
	suite.Suite
}

func TestExportSuite(t *testing.T) {
	suite.Run(t, new(ExportTestSuite))
}

func date(d int) time.Time {
	return time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC)
}

func (suite *ExportTestSuite) trades() []types.Trade {
	return []types.Trade{
		{Ticker: "VNM", EntryDate: date(2), ExitDate: date(9), EntryPrice: 100, ExitPrice: 110, Shares: 1000, Profit: 9000, HoldingDays: 7, ExitType: types.ExitTypeNormal},
		{Ticker: "HPG", EntryDate: date(2).Add(14 * time.Hour), ExitDate: date(4), EntryPrice: 25, ExitPrice: 24, Shares: 200, Profit: -250, HoldingDays: 2, ExitType: types.ExitTypePyramid},
	}
}

func (suite *ExportTestSuite) TestProfitPctIsExact() {
	records := TradesToSignals(suite.trades()[:1])
	suite.Require().Len(records, 2)

	sell := records[1]
	suite.Equal(types.SignalTypeSell, sell.SignalType)
	suite.Require().True(sell.ProfitPct.IsSome())
	suite.True(sell.ProfitPct.Unwrap().Equal(decimal.RequireFromString("0.10")))
	suite.True(sell.Profit.Unwrap().Equal(decimal.NewFromInt(9000)))
}

func (suite *ExportTestSuite) TestOrdering() {
	records := TradesToSignals(suite.trades())
	suite.Require().Len(records, 4)

	got := make([]string, 0, len(records))
	for _, r := range records {
		got = append(got, r.Date.Format("01-02")+" "+string(r.SignalType)+" "+r.Ticker)
	}

	suite.Equal([]string{
		"07-02 BUY_NEW HPG",
		"07-02 BUY_NEW VNM",
		"07-04 SELL HPG",
		"07-09 SELL VNM",
	}, got)

	buy := records[0]
	suite.True(buy.Profit.IsNone())
	suite.True(buy.ProfitPct.IsNone())
	suite.Empty(buy.ExitType)
	// entry timestamps are cut to the date
	suite.True(date(2).Equal(buy.Date))
}

func (suite *ExportTestSuite) TestZeroEntryPrice() {
	records := TradesToSignals([]types.Trade{
		{Ticker: "AAA", EntryDate: date(1), ExitDate: date(3), EntryPrice: 0, ExitPrice: 5, Shares: 100, Profit: 500},
	})

	suite.True(records[1].ProfitPct.IsNone())
	suite.True(records[1].Profit.IsSome())
}

func (suite *ExportTestSuite) TestMissingEntryPrice() {
	tests := []struct {
		name  string
		trade types.Trade
		buy   bool
		sell  bool
	}{
		{"nan entry", types.Trade{EntryPrice: math.NaN(), ExitPrice: 110, Profit: 10}, false, true},
		{"inf exit", types.Trade{EntryPrice: 100, ExitPrice: math.Inf(1), Profit: 10}, true, false},
		{"nan profit", types.Trade{EntryPrice: 100, ExitPrice: 110, Profit: math.NaN()}, true, true},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			trade := tc.trade
			trade.Ticker = "AAA"
			trade.EntryDate = date(1)
			trade.ExitDate = date(3)
			trade.Shares = 100

			var records []types.SignalRecord
			suite.Require().NotPanics(func() {
				records = TradesToSignals([]types.Trade{trade})
			})
			suite.Require().Len(records, 2)

			buy, sell := records[0], records[1]
			suite.Equal(tc.buy, buy.Price.IsSome())
			suite.Equal(tc.sell, sell.Price.IsSome())
			suite.True(sell.ProfitPct.IsNone())
			suite.Equal(!math.IsNaN(trade.Profit), sell.Profit.IsSome())

			var buf bytes.Buffer
			suite.Require().NoError(WriteCSV(&buf, records))
			rows, err := csv.NewReader(&buf).ReadAll()
			suite.Require().NoError(err)
			suite.Require().Len(rows, 3)
			suite.Equal("", rows[2][8])
			if !tc.buy {
				suite.Equal("", rows[1][3])
			}
		})
	}
}

func (suite *ExportTestSuite) TestEmpty() {
	suite.Empty(TradesToSignals(nil))

	var buf bytes.Buffer
	suite.Require().NoError(WriteCSV(&buf, nil))
	suite.Equal("date,signal_type,ticker,price,shares,holding_days,exit_type,profit,profit_pct\n", buf.String())
}

func (suite *ExportTestSuite) TestWriteCSV() {
	var buf bytes.Buffer
	suite.Require().NoError(WriteCSV(&buf, TradesToSignals(suite.trades()[:1])))

	rows, err := csv.NewReader(&buf).ReadAll()
	suite.Require().NoError(err)
	suite.Require().Len(rows, 3)

	suite.Equal([]string{"2025-07-02", "BUY_NEW", "VNM", "100", "1000", "7", "", "", ""}, rows[1])
	suite.Equal([]string{"2025-07-09", "SELL", "VNM", "110", "1000", "7", "Normal", "9000", "0.1"}, rows[2])
}

func (suite *ExportTestSuite) TestWriteParquet() {
	path := filepath.Join(suite.T().TempDir(), "nested", "signals.parquet")

	suite.Require().NoError(WriteParquet(context.Background(), path, TradesToSignals(suite.trades())))

	db, err := sql.Open("duckdb", "")
	suite.Require().NoError(err)

	defer db.Close()

	var (
		count   int
		sells   int
		nullPct int
	)

	suite.Require().NoError(db.QueryRow(`
		SELECT COUNT(*),
			COUNT(CASE WHEN signal_type = 'SELL' THEN 1 END),
			COUNT(CASE WHEN profit_pct IS NULL THEN 1 END)
		FROM read_parquet('` + path + `')`).Scan(&count, &sells, &nullPct))

	suite.Equal(4, count)
	suite.Equal(2, sells)
	suite.Equal(2, nullPct)

	var pct float64

	suite.Require().NoError(db.QueryRow(
		"SELECT profit_pct FROM read_parquet('" + path + "') WHERE ticker = 'VNM' AND signal_type = 'SELL'",
	).Scan(&pct))
	suite.InDelta(0.1, pct, 1e-12)
}

func (suite *ExportTestSuite) TestWriteParquetEmpty() {
	path := filepath.Join(suite.T().TempDir(), "empty.parquet")

	suite.Require().NoError(WriteParquet(context.Background(), path, nil))
	suite.FileExists(path)
}
