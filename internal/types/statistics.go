package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a trade in calendar days
	Min int `yaml:"min"`
	// Maximum holding time of a trade in calendar days
	Max int `yaml:"max"`
	// Average holding time of a trade in calendar days
	Avg float64 `yaml:"avg"`
}

type TradePnl struct {
	// Realized PnL. Sum of every trade's net profit.
	RealizedPnL float64 `yaml:"realized_pnl"`
	// Maximum loss. Minimum single trade profit.
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Maximum profit. Maximum single trade profit.
	MaximumProfit float64 `yaml:"maximum_profit"`
}

type TradeResult struct {
	// Count of all trades, partial exits included.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of trades with positive profit.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of trades with negative profit.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate"`
}

// BacktestStats summarizes one simulation run.
type BacktestStats struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	StartDate time.Time `yaml:"start_date" json:"start_date"`
	EndDate   time.Time `yaml:"end_date" json:"end_date"`
	// TradingDays is the number of simulated dates.
	TradingDays int `yaml:"trading_days" json:"trading_days"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	// FinalCapital is working capital plus still unsettled proceeds at the end of the run.
	FinalCapital float64 `yaml:"final_capital" json:"final_capital"`
	// OpenPositions is the number of positions still held at the end of the run.
	OpenPositions int `yaml:"open_positions" json:"open_positions"`

	TradeResult      TradeResult         `yaml:"trade_result"`
	TradeHoldingTime TradeHoldingTime    `yaml:"trade_holding_time"`
	TradePnl         TradePnl            `yaml:"trade_pnl"`
	PhaseDays        map[MarketPhase]int `yaml:"phase_days"`
	ExitTypes        map[ExitType]int    `yaml:"exit_types"`

	// TradesFilePath is the path to the trades parquet file.
	TradesFilePath string `yaml:"trades_file_path" json:"trades_file_path"`
	// SignalsFilePath is the path to the signals CSV file.
	SignalsFilePath string `yaml:"signals_file_path" json:"signals_file_path"`
	// DataPath is the path to the market data file used for this backtest.
	DataPath string `yaml:"data_path" json:"data_path"`
}

// WriteBacktestStats writes the stats as YAML to path.
func WriteBacktestStats(path string, stats BacktestStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest stats to file: %w", err)
	}

	return nil
}
