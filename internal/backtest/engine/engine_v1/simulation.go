package engine

import (
	"math"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-signals/internal/feature"
	"github.com/rxtech-lab/argo-signals/internal/regime"
	"github.com/rxtech-lab/argo-signals/internal/screener"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/internal/utils"
)

const (
	// settlementLag is the number of trading days between an exit and the release of its proceeds.
	settlementLag = 2

	extendedHoldDays      = 50
	extendedHoldProfitPct = 0.08
	sidewayLossExitPct    = -0.03
	momentumLossProfitPct = 0.01

	weakRSIMax = 30
	weakMFIMax = 20

	pyramidMinHoldDays  = 2
	pyramidMaxHoldDays  = 10
	pyramidMinProfitPct = 0.05
	pyramidMaxProfitPct = 0.10
	pyramidAddFraction  = 0.2
	pyramidTakeProfit   = 1.12
	pyramidTrailFactor  = 0.7

	partialTakeProfit = 1.15
	partialStopFactor = 1.2

	bigSlotAllocation = 1.1
)

// dayReport summarizes one simulated date.
type dayReport struct {
	Date          time.Time
	Phase         types.MarketPhase
	Trades        []types.Trade
	Entries       int
	OpenPositions int
}

// simulationContext owns all mutable state of one run: capital, open positions and the
// settlement queue. It is created per run and never shared.
type simulationContext struct {
	config BacktestEngineV1Config
	fee    commission_fee.CommissionFee
	panel  *feature.Panel
	dates  []time.Time

	workingCapital float64
	positions      map[string]*types.Position
	// order keeps positions in the order they were opened
	order       []string
	settlements []types.PendingSettlement
}

func newSimulationContext(config BacktestEngineV1Config, panel *feature.Panel) *simulationContext {
	return &simulationContext{
		config:         config,
		fee:            config.CommissionFee(),
		panel:          panel,
		dates:          panel.Dates(),
		workingCapital: config.InitialCapital,
		positions:      make(map[string]*types.Position),
		order:          make([]string, 0),
		settlements:    make([]types.PendingSettlement, 0),
	}
}

// WorkingCapital returns the spendable cash.
func (s *simulationContext) WorkingCapital() float64 {
	return s.workingCapital
}

// PendingCash returns the proceeds still waiting for settlement.
func (s *simulationContext) PendingCash() float64 {
	total := 0.0
	for _, p := range s.settlements {
		total += p.Amount
	}

	return total
}

// Positions returns the open positions in the order they were opened.
func (s *simulationContext) Positions() []types.Position {
	out := make([]types.Position, 0, len(s.order))
	for _, ticker := range s.order {
		out = append(out, *s.positions[ticker])
	}

	return out
}

// step simulates the date at position idx.
func (s *simulationContext) step(idx int) dayReport {
	date := s.dates[idx]
	report := dayReport{Date: date, Phase: types.MarketPhaseBear}

	s.releaseSettlements(date)

	market, ok := s.panel.Market(idx)
	if !ok {
		report.OpenPositions = len(s.positions)
		return report
	}

	phase := regime.Classify(market, regime.SimulationThresholds)
	isBear := regime.SimulationThresholds.IsBear(market)
	params := regime.ParamsFor(phase)

	report.Phase = phase
	report.Trades = s.evaluateExits(idx, phase, params)

	candidates := screener.Screen(s.panel.Day(idx), s.config.ScreenerConfig())
	if s.config.EntryMode == EntryModeClose && len(candidates) > 0 && !isBear {
		report.Entries = s.evaluateEntries(idx, phase, params, candidates)
	}

	report.OpenPositions = len(s.positions)

	return report
}

func (s *simulationContext) releaseSettlements(date time.Time) {
	released := 0

	for _, p := range s.settlements {
		if p.SettlementDate.After(date) {
			break
		}

		s.workingCapital += p.Amount
		released++
	}

	s.settlements = s.settlements[released:]
}

// queueSettlement inserts after every entry with the same or an earlier date.
func (s *simulationContext) queueSettlement(date time.Time, amount float64) {
	i := sort.Search(len(s.settlements), func(i int) bool {
		return s.settlements[i].SettlementDate.After(date)
	})

	s.settlements = append(s.settlements, types.PendingSettlement{})
	copy(s.settlements[i+1:], s.settlements[i:])
	s.settlements[i] = types.PendingSettlement{SettlementDate: date, Amount: amount}
}

func (s *simulationContext) pyramidLimit(params regime.PhaseParams) int {
	if s.config.PyramidLimit > 0 {
		return min(params.PyramidLimit, s.config.PyramidLimit)
	}

	return params.PyramidLimit
}

func (s *simulationContext) evaluateExits(idx int, phase types.MarketPhase, params regime.PhaseParams) []types.Trade {
	date := s.dates[idx]
	cfg := s.config
	trades := make([]types.Trade, 0)
	closed := make(map[string]struct{})

	for _, ticker := range s.order {
		pos := s.positions[ticker]

		row, ok := s.panel.Row(idx, ticker)
		if !ok || math.IsNaN(row.Close) {
			continue
		}

		holding := calendarDays(pos.EntryDate, date)

		if row.High > pos.HighestPrice {
			pos.HighestPrice = row.High
			pos.TrailingStop = row.High * (1 - cfg.TrailingStopPct)
		}

		takeProfit := pos.TakeProfit
		stopLoss := pos.StopLoss

		if phase == types.MarketPhaseSideway {
			if !math.IsNaN(row.BollUpper) {
				takeProfit = pyMin(takeProfit, row.BollUpper)
			}

			if !math.IsNaN(row.BollLower) {
				stopLoss = pyMax(stopLoss, row.BollLower)
			}
		}

		stop := pyMin(stopLoss, pos.TrailingStop)
		exitKind := exitTypeFor(pos)

		var (
			hitTakeProfit bool
			hitStopLoss   bool
			hasExitPrice  bool
			exitPrice     float64
			exitType      = types.ExitTypeNormal
		)

		if holding >= cfg.MinHoldingDays {
			switch {
			case !math.IsNaN(row.Open) && row.Open >= takeProfit:
				hitTakeProfit, hasExitPrice, exitPrice, exitType = true, true, row.Open, exitKind
			case !math.IsNaN(row.Open) && row.Open <= stop:
				hitStopLoss, hasExitPrice, exitPrice = true, true, row.Open
			case row.High >= takeProfit:
				hitTakeProfit, hasExitPrice, exitPrice, exitType = true, true, row.Close, exitKind
			case row.Low <= stop:
				hitStopLoss, hasExitPrice, exitPrice = true, true, row.Close
			}
		}

		prevOBV := math.NaN()
		if prev, ok := s.panel.Row(idx-1, ticker); ok {
			prevOBV = prev.OBV
		}

		weak := row.RSI14 < weakRSIMax && row.MFI14 < weakMFIMax && row.OBV < prevOBV
		profitPct := row.Close/pos.EntryPrice - 1

		softExit := holding >= params.MaxHoldDays ||
			weak ||
			(phase == types.MarketPhaseBear && profitPct < params.LossExitThreshold) ||
			(phase == types.MarketPhaseSideway && profitPct < sidewayLossExitPct)

		if holding >= extendedHoldDays && profitPct > extendedHoldProfitPct && phase == types.MarketPhaseBull {
			softExit = false
		}

		if phase == types.MarketPhaseSideway && row.SMA5 < row.SMA50 && profitPct < momentumLossProfitPct {
			softExit = true
			exitType = types.ExitTypeMomentumLoss
		}

		if !hitTakeProfit && !hitStopLoss && !softExit && phase == types.MarketPhaseBull &&
			holding >= pyramidMinHoldDays && holding <= pyramidMaxHoldDays &&
			profitPct > pyramidMinProfitPct && profitPct < pyramidMaxProfitPct &&
			pos.PyramidCount < s.pyramidLimit(params) {
			if s.pyramid(pos, row.Close) {
				continue
			}
		}

		if !(hitTakeProfit || hitStopLoss || softExit) || holding < cfg.MinHoldingDays {
			continue
		}

		if softExit && !hasExitPrice {
			exitPrice = row.Close
			exitType = exitKind
		}

		trade, ok := s.exit(idx, pos, row, exitPrice, exitType, hitTakeProfit)
		if !ok {
			continue
		}

		trades = append(trades, trade)

		if hitTakeProfit && trade.Shares < pos.Shares {
			pos.Shares -= trade.Shares
			pos.TakeProfit = trade.ExitPrice * partialTakeProfit
			pos.StopLoss = pyMax(pos.StopLoss, trade.ExitPrice*(1-cfg.TrailingStopPct*partialStopFactor))

			continue
		}

		closed[ticker] = struct{}{}
	}

	s.removePositions(closed)

	return trades
}

// pyramid adds to a winning position and reports whether the add executed.
func (s *simulationContext) pyramid(pos *types.Position, price float64) bool {
	lot := s.config.LotSize

	add := utils.RoundDownToLot(float64(pos.Shares)*pyramidAddFraction, lot)
	cost := s.fee.BuyCost(float64(add) * price)

	if add < lot || s.workingCapital < cost {
		return false
	}

	pos.AvgCost = (float64(pos.Shares)*pos.AvgCost + float64(add)*price) / float64(pos.Shares+add)
	pos.Shares += add
	pos.PyramidCount++
	pos.TakeProfit = price * pyramidTakeProfit
	pos.TrailingStop = price * (1 - s.config.TrailingStopPct*pyramidTrailFactor)
	s.workingCapital -= cost

	return true
}

// exit liquidates all or part of pos. It returns false when nothing was sold.
func (s *simulationContext) exit(
	idx int,
	pos *types.Position,
	row types.IndicatorRow,
	exitPrice float64,
	exitType types.ExitType,
	partial bool,
) (types.Trade, bool) {
	cfg := s.config
	shares := utils.CalculateSellShares(pos.Shares, partial, cfg.PartialProfitPct, cfg.LotSize)

	exitIdx := idx

	canSell := !math.IsNaN(row.Volume) && row.Volume > 0 &&
		float64(shares) <= row.Volume*cfg.LiquidityThreshold
	if !canSell {
		exitIdx, exitPrice = s.deferredExit(idx, pos, row.Close)
	}

	net := s.fee.SellProceeds(exitPrice * float64(shares))
	if net <= 0 {
		return types.Trade{}, false
	}

	exitDate := s.dates[exitIdx]
	s.queueSettlement(s.dates[min(exitIdx+settlementLag, len(s.dates)-1)], net)

	holding := calendarDays(pos.EntryDate, exitDate)
	if holding < cfg.MinHoldingDays {
		return types.Trade{}, false
	}

	return types.Trade{
		Ticker:      pos.Ticker,
		EntryDate:   pos.EntryDate,
		ExitDate:    exitDate,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Shares:      shares,
		Profit:      net - s.fee.BuyCost(float64(shares)*pos.AvgCost),
		HoldingDays: holding,
		ExitType:    exitType,
	}, true
}

// deferredExit finds the first later date past the minimum holding period with a valid
// open. Without one, the position goes at today's close.
func (s *simulationContext) deferredExit(idx int, pos *types.Position, closePrice float64) (int, float64) {
	for next := idx + 1; next < len(s.dates); next++ {
		if calendarDays(pos.EntryDate, s.dates[next]) < s.config.MinHoldingDays {
			continue
		}

		row, ok := s.panel.Row(next, pos.Ticker)
		if ok && !math.IsNaN(row.Open) {
			return next, row.Open
		}
	}

	return idx, closePrice
}

func (s *simulationContext) removePositions(closed map[string]struct{}) {
	if len(closed) == 0 {
		return
	}

	kept := s.order[:0]

	for _, ticker := range s.order {
		if _, ok := closed[ticker]; ok {
			delete(s.positions, ticker)
			continue
		}

		kept = append(kept, ticker)
	}

	s.order = kept
}

func (s *simulationContext) evaluateEntries(
	idx int,
	phase types.MarketPhase,
	params regime.PhaseParams,
	candidates []types.Candidate,
) int {
	cfg := s.config

	slots := int(float64(cfg.MaxOpenPositions-len(s.positions)) * params.PositionMultiplier)
	if phase == types.MarketPhaseBear {
		slots = max(1, slots/2)
	}

	slots = max(slots, 0)
	if slots == 0 {
		return 0
	}

	allocation := 1.0
	if slots > 2 {
		allocation = bigSlotAllocation
	}

	maxInvestment := s.workingCapital * cfg.MaxInvestmentPerTradePct
	executed := 0

	for _, candidate := range candidates {
		row := candidate.Row
		if _, held := s.positions[candidate.Ticker]; held {
			continue
		}

		price := row.Close
		if !(price > 0) {
			continue
		}

		investment := pyMin(
			s.workingCapital/float64(max(slots, 1))*params.PositionMultiplier*allocation,
			maxInvestment,
		)

		shares := utils.CalculateEntryShares(investment, price, s.fee, row.VolumeMA20, cfg.TradeLimitPct, cfg.LotSize)
		if shares < cfg.LotSize {
			continue
		}

		if float64(shares)*price > row.Volume*row.Close*cfg.LiquidityThreshold {
			continue
		}

		cost := s.fee.BuyCost(float64(shares) * price)
		if s.workingCapital-cost < 0 {
			continue
		}

		s.workingCapital -= cost
		s.open(candidate.Ticker, row, shares, params.ATRMultiplier)

		executed++
		if executed >= slots {
			break
		}
	}

	return executed
}

func (s *simulationContext) open(ticker string, row types.IndicatorRow, shares int64, atrMultiplier float64) {
	price := row.Close

	s.positions[ticker] = &types.Position{
		Ticker:       ticker,
		Shares:       shares,
		EntryPrice:   price,
		AvgCost:      price,
		EntryDate:    row.Date,
		TakeProfit:   price + atrMultiplier*row.ATR14,
		StopLoss:     price - atrMultiplier*row.ATR14,
		TrailingStop: price * (1 - s.config.TrailingStopPct),
		HighestPrice: price,
		PyramidCount: 0,
	}
	s.order = append(s.order, ticker)
}

func exitTypeFor(pos *types.Position) types.ExitType {
	if pos.PyramidCount > 0 {
		return types.ExitTypePyramid
	}

	return types.ExitTypeNormal
}

// calendarDays counts whole days between two normalized dates.
func calendarDays(from, to time.Time) int {
	return int(math.Round(types.NormalizeDate(to).Sub(types.NormalizeDate(from)).Hours() / 24))
}

// pyMin returns b only when it is strictly smaller than a, so a NaN in a wins.
func pyMin(a, b float64) float64 {
	if b < a {
		return b
	}

	return a
}

// pyMax returns b only when it is strictly greater than a.
func pyMax(a, b float64) float64 {
	if b > a {
		return b
	}

	return a
}
