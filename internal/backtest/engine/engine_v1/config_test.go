package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-signals/internal/version"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestDefaultConfig() {
	config := DefaultConfig()

	suite.Equal(200000.0, config.MinVolumeMA20)
	suite.Equal(20, config.MaxCandidates)
	suite.Equal(1e9, config.InitialCapital)
	suite.Equal(commission_fee.BrokerPercentage, config.Broker)
	suite.Equal(0.001, config.CommissionBuy)
	suite.Equal(0.001, config.CommissionSell)
	suite.Equal(0.001, config.TaxSell)
	suite.Equal(0.01, config.TradeLimitPct)
	suite.Equal(0.10, config.MaxInvestmentPerTradePct)
	suite.Equal(8, config.MaxOpenPositions)
	suite.Equal(int64(100), config.LotSize)
	suite.Equal(0.1, config.LiquidityThreshold)
	suite.Equal(EntryModeClose, config.EntryMode)
	suite.Equal(0.05, config.TrailingStopPct)
	suite.Equal(0.4, config.PartialProfitPct)
	suite.Equal(2, config.MinHoldingDays)
	suite.Equal(0.5, config.MarketBollWidthFallback)
	suite.Equal(25.0, config.MarketADXFallback)
	suite.True(config.StartDate.IsNone())
	suite.True(config.EndDate.IsNone())
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestEmptyConfigIsInvalid() {
	config := EmptyConfig()

	suite.Equal(0.0, config.InitialCapital)
	suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(config.Validate()))
}

func (suite *ConfigTestSuite) TestTestConfig() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	config := TestConfig(start, end, commission_fee.BrokerZero)

	suite.Equal(commission_fee.BrokerZero, config.Broker)
	suite.Equal(start, config.StartDate.Unwrap())
	suite.Equal(end, config.EndDate.Unwrap())
	suite.Equal(0.0, config.CommissionFee().BuyRate())
}

func (suite *ConfigTestSuite) TestParseConfigKeepsDefaults() {
	config, err := ParseConfig([]byte(`
initial_capital: 500000000
lot_size: 10
start_date: 2024-01-02
end_date: 2024-06-28
`))
	suite.Require().NoError(err)

	suite.Equal(5e8, config.InitialCapital)
	suite.Equal(int64(10), config.LotSize)
	suite.Equal(8, config.MaxOpenPositions)
	suite.Equal(0.05, config.TrailingStopPct)

	suite.Require().True(config.StartDate.IsSome())
	suite.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), config.StartDate.Unwrap().UTC())
	suite.Require().True(config.EndDate.IsSome())
	suite.Equal(time.June, config.EndDate.Unwrap().Month())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLWithoutDates() {
	config := DefaultConfig()

	suite.Require().NoError(yaml.Unmarshal([]byte("max_candidates: 5\nbroker: zero_commission\n"), &config))
	suite.Equal(5, config.MaxCandidates)
	suite.Equal(commission_fee.BrokerZero, config.Broker)
	suite.True(config.StartDate.IsNone())
	suite.True(config.EndDate.IsNone())
}

func (suite *ConfigTestSuite) TestParseConfigErrors() {
	original := version.Version
	defer func() { version.Version = original }()

	version.Version = "v1.0.0"

	tests := []struct {
		name string
		yaml string
		code errors.ErrorCode
	}{
		{name: "malformed yaml", yaml: "initial_capital: [", code: errors.ErrCodeInvalidConfiguration},
		{name: "negative capital", yaml: "initial_capital: -1", code: errors.ErrCodeInvalidConfiguration},
		{name: "zero lot", yaml: "lot_size: 0", code: errors.ErrCodeInvalidConfiguration},
		{name: "unknown entry mode", yaml: "entry_mode: vwap", code: errors.ErrCodeInvalidConfiguration},
		{name: "end before start", yaml: "start_date: 2024-02-01\nend_date: 2024-01-01", code: errors.ErrCodeInvalidConfiguration},
		{name: "incompatible engine", yaml: "engine_version: \"2.0\"", code: errors.ErrCodeVersionMismatch},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := ParseConfig([]byte(tc.yaml))
			suite.Require().Error(err)
			suite.Equal(tc.code, errors.GetCode(err))
		})
	}
}

func (suite *ConfigTestSuite) TestCompatibleEngineVersion() {
	original := version.Version
	defer func() { version.Version = original }()

	version.Version = "v1.0.3"

	config, err := ParseConfig([]byte("engine_version: \"1.0\"\n"))
	suite.Require().NoError(err)
	suite.Equal("1.0", config.EngineVersion)
}

func (suite *ConfigTestSuite) TestGenerateSchema() {
	config := &BacktestEngineV1Config{}
	schema, err := config.GenerateSchema()

	suite.NoError(err)
	suite.NotNil(schema)
	suite.Equal("backtest-engine-v1-config", schema.Title)
	suite.Equal("Configuration schema for BacktestEngineV1", schema.Description)
	suite.Equal("http://json-schema.org/draft-07/schema#", schema.Version)
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	config := DefaultConfig()
	schemaJSON, err := config.GenerateSchemaJSON()

	suite.NoError(err)
	suite.NotEmpty(schemaJSON)

	var result map[string]interface{}
	suite.Require().NoError(json.Unmarshal([]byte(schemaJSON), &result))

	suite.Equal("backtest-engine-v1-config", result["title"])

	properties, ok := result["properties"].(map[string]interface{})
	suite.Require().True(ok)
	suite.Contains(properties, "lot_size")
	suite.Contains(properties, "start_date")

	startDate, ok := properties["start_date"].(map[string]interface{})
	suite.Require().True(ok)
	suite.Equal("date", startDate["format"])
}
