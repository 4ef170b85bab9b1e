package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-signals/internal/feature"
	"github.com/rxtech-lab/argo-signals/internal/regime"
	"github.com/rxtech-lab/argo-signals/internal/screener"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/stretchr/testify/suite"
)

var (
	bullMarket = map[string]float64{
		"market_close":      110,
		"market_MA50":       100,
		"market_MA200":      90,
		"market_rsi":        60,
		"market_adx":        30,
		"market_boll_width": 0.5,
	}
	// sideway for screening, bear for the simulator: close below MA200
	bearishSidewayMarket = map[string]float64{
		"market_close":      85,
		"market_MA50":       100,
		"market_MA200":      90,
		"market_rsi":        45,
		"market_adx":        22,
		"market_boll_width": 0.3,
	}
)

func tradingDay(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

type ohlc struct {
	open, high, low, close float64
}

// fixtureBar builds a bar whose indicator columns are already set, so preparation
// keeps them as they are. The defaults pass the bull screen.
func fixtureBar(ticker string, date time.Time, px ohlc, market map[string]float64, overrides map[string]float64) types.MarketBar {
	extras := map[string]float64{
		"volume_ma20":   500000,
		"sma_5":         115,
		"sma_50":        100,
		"sma_200":       90,
		"rsi_14":        65,
		"volume_spike":  1.5,
		"macd":          1,
		"macd_signal":   0.5,
		"atr_14":        3,
		"boll_upper":    130,
		"boll_lower":    100,
		"boll_width":    0.2,
		"mfi_14":        50,
		"obv":           1e6,
		"highest_in_5d": px.high,
	}

	for k, v := range market {
		extras[k] = v
	}

	volume := 600000.0
	for k, v := range overrides {
		if k == "volume" {
			volume = v
			continue
		}

		extras[k] = v
	}

	return types.MarketBar{
		Ticker: ticker,
		Time:   date,
		Open:   optional.Some(px.open),
		High:   optional.Some(px.high),
		Low:    optional.Some(px.low),
		Close:  px.close,
		Volume: volume,
		Extras: extras,
	}
}

// lifecycleBars walks HPG through entry, a partial take profit, a pyramid add and a
// gap down through the stop:
//
//	06-03 enter 5000 @ 120 (tp 126, sl 114)
//	06-05 high 127 hits tp, sell 2000 @ 126.5
//	06-06 +5.8% in bull, add 600 @ 127
//	06-07 open 115 below the stop, sell 3600 @ 115
func lifecycleBars(overrides map[int]map[string]float64) []types.MarketBar {
	prices := []struct {
		day int
		px  ohlc
	}{
		{3, ohlc{120, 120, 119, 120}},
		{4, ohlc{120, 121, 119.5, 120.5}},
		{5, ohlc{121, 127, 120.5, 126.5}},
		{6, ohlc{126.5, 127.5, 126, 127}},
		{7, ohlc{115, 116, 114, 116}},
	}

	bars := make([]types.MarketBar, 0, len(prices))

	for _, p := range prices {
		o := map[string]float64{}
		if p.day == 7 {
			// below sma_5 so HPG is not bought back
			o["sma_5"] = 125
		}

		for k, v := range overrides[p.day] {
			o[k] = v
		}

		bars = append(bars, fixtureBar("HPG", tradingDay(p.day), p.px, bullMarket, o))
	}

	return bars
}

func zeroFeeConfig() BacktestEngineV1Config {
	config := DefaultConfig()
	config.Broker = commission_fee.BrokerZero

	return config
}

func buildPanel(bars []types.MarketBar) (*feature.Panel, error) {
	frame, err := feature.FromBars(bars)
	if err != nil {
		return nil, err
	}

	prepared, err := feature.Prepare(context.Background(), frame, feature.DefaultConfig())
	if err != nil {
		return nil, err
	}

	return feature.NewPanel(prepared), nil
}

type SimulationTestSuite struct {
	suite.Suite
}

func TestSimulationSuite(t *testing.T) {
	suite.Run(t, new(SimulationTestSuite))
}

func (suite *SimulationTestSuite) newSimulation(config BacktestEngineV1Config, bars []types.MarketBar) *simulationContext {
	panel, err := buildPanel(bars)
	suite.Require().NoError(err)

	return newSimulationContext(config, panel)
}

func (suite *SimulationTestSuite) TestLifecycle() {
	sim := suite.newSimulation(zeroFeeConfig(), lifecycleBars(nil))
	initial := 1e9

	report := sim.step(0)
	suite.Equal(types.MarketPhaseBull, report.Phase)
	suite.Equal(1, report.Entries)
	suite.Empty(report.Trades)

	positions := sim.Positions()
	suite.Require().Len(positions, 1)
	suite.Equal(int64(5000), positions[0].Shares)
	suite.Equal(126.0, positions[0].TakeProfit)
	suite.Equal(114.0, positions[0].StopLoss)
	suite.InDelta(initial-600000, sim.WorkingCapital(), 1e-6)

	// minimum holding period, no exit checks
	report = sim.step(1)
	suite.Empty(report.Trades)
	suite.Equal(1, report.OpenPositions)

	report = sim.step(2)
	suite.Require().Len(report.Trades, 1)

	partial := report.Trades[0]
	suite.Equal(int64(2000), partial.Shares)
	suite.Equal(126.5, partial.ExitPrice)
	suite.InDelta(13000, partial.Profit, 1e-6)
	suite.Equal(2, partial.HoldingDays)
	suite.Equal(types.ExitTypeNormal, partial.ExitType)
	suite.True(tradingDay(5).Equal(partial.ExitDate))

	residual := sim.Positions()[0]
	suite.Equal(int64(3000), residual.Shares)
	suite.InDelta(126.5*1.15, residual.TakeProfit, 1e-9)
	suite.InDelta(126.5*(1-0.05*1.2), residual.StopLoss, 1e-9)

	// proceeds settle two trading days later
	suite.InDelta(initial-600000, sim.WorkingCapital(), 1e-6)
	suite.InDelta(253000, sim.PendingCash(), 1e-6)

	report = sim.step(3)
	suite.Empty(report.Trades)

	pyramided := sim.Positions()[0]
	suite.Equal(int64(3600), pyramided.Shares)
	suite.Equal(1, pyramided.PyramidCount)
	suite.InDelta(436200.0/3600.0, pyramided.AvgCost, 1e-9)
	suite.InDelta(127*1.12, pyramided.TakeProfit, 1e-9)
	suite.InDelta(initial-600000-76200, sim.WorkingCapital(), 1e-6)

	report = sim.step(4)
	suite.Require().Len(report.Trades, 1)
	suite.Equal(0, report.Entries)

	stopped := report.Trades[0]
	suite.Equal(int64(3600), stopped.Shares)
	suite.Equal(115.0, stopped.ExitPrice)
	suite.InDelta(-22200, stopped.Profit, 1e-6)
	// stop loss exits keep the plain label even after a pyramid add
	suite.Equal(types.ExitTypeNormal, stopped.ExitType)
	suite.Empty(sim.Positions())

	suite.InDelta(initial-600000-76200+253000, sim.WorkingCapital(), 1e-6)
	suite.InDelta(414000, sim.PendingCash(), 1e-6)
	suite.InDelta(initial-9200, sim.WorkingCapital()+sim.PendingCash(), 1e-6)
}

func (suite *SimulationTestSuite) TestIlliquidExitIsDeferred() {
	// 2000 shares exceed 10% of a 10000 share day
	sim := suite.newSimulation(zeroFeeConfig(), lifecycleBars(map[int]map[string]float64{
		5: {"volume": 10000},
	}))

	sim.step(0)
	sim.step(1)

	report := sim.step(2)
	suite.Require().Len(report.Trades, 1)

	trade := report.Trades[0]
	suite.True(tradingDay(6).Equal(trade.ExitDate))
	suite.Equal(126.5, trade.ExitPrice)
	suite.Equal(3, trade.HoldingDays)
}

func (suite *SimulationTestSuite) TestBearFlagBlocksEntries() {
	bars := make([]types.MarketBar, 0)
	sideway := map[string]float64{
		"sma_5":        105,
		"sma_50":       100,
		"sma_200":      100,
		"rsi_14":       50,
		"boll_width":   0.1,
		"volume_spike": 1.2,
	}

	for d := 3; d <= 5; d++ {
		bars = append(bars, fixtureBar("VNM", tradingDay(d), ohlc{109, 111, 108, 110}, bearishSidewayMarket, sideway))
	}

	sim := suite.newSimulation(zeroFeeConfig(), bars)

	// the screen alone would pick VNM
	suite.NotEmpty(screener.Screen(sim.panel.Day(0), sim.config.ScreenerConfig()))

	for idx := range 3 {
		report := sim.step(idx)
		suite.Equal(types.MarketPhaseBear, report.Phase)
		suite.Equal(0, report.Entries)
	}

	suite.Empty(sim.Positions())
	suite.Equal(1e9, sim.WorkingCapital())
}

func (suite *SimulationTestSuite) TestOpenEntryModeNeverBuys() {
	config := zeroFeeConfig()
	config.EntryMode = "open"

	sim := suite.newSimulation(config, lifecycleBars(nil))

	for idx := range 5 {
		report := sim.step(idx)
		suite.Equal(0, report.Entries)
	}

	suite.Empty(sim.Positions())
}

func (suite *SimulationTestSuite) TestPyramidLimitCap() {
	config := zeroFeeConfig()
	config.PyramidLimit = 1
	sim := suite.newSimulation(config, nil)

	suite.Equal(1, sim.pyramidLimit(regime.PhaseParams{PyramidLimit: 2}))
	suite.Equal(1, sim.pyramidLimit(regime.PhaseParams{PyramidLimit: 1}))

	config.PyramidLimit = 0
	sim = suite.newSimulation(config, nil)
	suite.Equal(2, sim.pyramidLimit(regime.PhaseParams{PyramidLimit: 2}))
}

func (suite *SimulationTestSuite) TestSettlementQueue() {
	sim := suite.newSimulation(zeroFeeConfig(), nil)

	sim.queueSettlement(tradingDay(10), 1)
	sim.queueSettlement(tradingDay(5), 2)
	sim.queueSettlement(tradingDay(10), 3)
	sim.queueSettlement(tradingDay(7), 4)

	amounts := make([]float64, 0)
	for _, p := range sim.settlements {
		amounts = append(amounts, p.Amount)
	}

	// ordered by date, first in first out within a date
	suite.Equal([]float64{2, 4, 1, 3}, amounts)
	suite.Equal(10.0, sim.PendingCash())

	sim.workingCapital = 0
	sim.releaseSettlements(tradingDay(7))

	suite.Equal(6.0, sim.WorkingCapital())
	suite.Len(sim.settlements, 2)

	sim.releaseSettlements(tradingDay(6))
	suite.Equal(6.0, sim.WorkingCapital())

	sim.releaseSettlements(tradingDay(10))
	suite.Equal(10.0, sim.WorkingCapital())
	suite.Empty(sim.settlements)
}

// TestUnsettledCashCannotFundEntries spends all capital on HPG, stops it out on 06-05
// and lets VNM qualify from 06-06. The proceeds settle on 06-07.
func (suite *SimulationTestSuite) TestUnsettledCashCannotFundEntries() {
	config := zeroFeeConfig()
	config.InitialCapital = 600000
	config.MaxOpenPositions = 1
	config.MaxInvestmentPerTradePct = 1

	hpg := []ohlc{
		{120, 120, 119, 120},
		{120, 121, 119.5, 120.5},
		// opens below the 114 stop
		{113, 114, 112, 113},
		{113, 114, 112, 113},
		{113, 114, 112, 113},
	}

	bars := make([]types.MarketBar, 0, 10)

	for i, px := range hpg {
		bars = append(bars, fixtureBar("HPG", tradingDay(3+i), px, bullMarket, nil))

		vnm := map[string]float64{}
		if i < 3 {
			// close below sma_5 keeps VNM out of the screen
			vnm["sma_5"] = 200
		}

		bars = append(bars, fixtureBar("VNM", tradingDay(3+i), ohlc{118, 121, 117, 120}, bullMarket, vnm))
	}

	sim := suite.newSimulation(config, bars)

	report := sim.step(0)
	suite.Equal(1, report.Entries)
	suite.Equal(0.0, sim.WorkingCapital())

	sim.step(1)

	report = sim.step(2)
	suite.Require().Len(report.Trades, 1)
	suite.Equal(113.0, report.Trades[0].ExitPrice)
	suite.Empty(sim.Positions())
	suite.Equal(0.0, sim.WorkingCapital())
	suite.InDelta(565000, sim.PendingCash(), 1e-6)

	// VNM qualifies but the proceeds are still pending
	suite.NotEmpty(screener.Screen(sim.panel.Day(3), sim.config.ScreenerConfig()))

	report = sim.step(3)
	suite.Equal(0, report.Entries)
	suite.Empty(sim.Positions())
	suite.Equal(0.0, sim.WorkingCapital())

	report = sim.step(4)
	suite.Equal(1, report.Entries)
	suite.Zero(sim.PendingCash())

	positions := sim.Positions()
	suite.Require().Len(positions, 1)
	suite.Equal("VNM", positions[0].Ticker)
	suite.Equal(int64(4700), positions[0].Shares)
	suite.InDelta(565000-4700*120, sim.WorkingCapital(), 1e-6)
}

func (suite *SimulationTestSuite) TestHelpers() {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "min picks the smaller", got: pyMin(3, 2), want: 2},
		{name: "min keeps a on ties", got: pyMin(2, 2), want: 2},
		{name: "min with nan b keeps a", got: pyMin(3, math.NaN()), want: 3},
		{name: "max picks the greater", got: pyMax(3, 4), want: 4},
		{name: "max with nan b keeps a", got: pyMax(3, math.NaN()), want: 3},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.want, tc.got)
		})
	}

	suite.True(math.IsNaN(pyMin(math.NaN(), 1)))
	suite.Equal(2, calendarDays(tradingDay(3), tradingDay(5)))
	suite.Equal(4, calendarDays(tradingDay(3), tradingDay(7).Add(15*time.Hour)))
}
