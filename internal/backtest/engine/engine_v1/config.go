package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-signals/internal/feature"
	"github.com/rxtech-lab/argo-signals/internal/screener"
	"github.com/rxtech-lab/argo-signals/internal/version"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EntryModeClose buys candidates at the close of the screening day. It is the only
// entry mode that opens positions; any other value simulates exits only.
const EntryModeClose = "close"

type BacktestEngineV1Config struct {
	// EngineVersion pins the engine the config was written for. Empty skips the check.
	EngineVersion string `yaml:"engine_version" json:"engine_version,omitempty" jsonschema:"title=Engine Version,description=Semantic version of the engine this config targets"`

	MinVolumeMA20 float64 `yaml:"min_volume_ma20" json:"min_volume_ma20" validate:"gte=0" jsonschema:"title=Min Volume MA20,description=Minimum 20 day average volume of a candidate,minimum=0"`
	MaxCandidates int     `yaml:"max_candidates" json:"max_candidates" validate:"gte=1" jsonschema:"title=Max Candidates,description=Maximum number of candidates kept per day,minimum=1"`

	InitialCapital float64               `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting working capital,minimum=0"`
	Broker         commission_fee.Broker `yaml:"broker" json:"broker" jsonschema:"title=Broker,description=The fee model to use for commission calculations"`
	CommissionBuy  float64               `yaml:"commission_buy" json:"commission_buy" validate:"gte=0,lt=1" jsonschema:"title=Commission Buy,description=Buy commission as a fraction of notional,minimum=0,maximum=1"`
	CommissionSell float64               `yaml:"commission_sell" json:"commission_sell" validate:"gte=0,lt=1" jsonschema:"title=Commission Sell,description=Sell commission as a fraction of notional,minimum=0,maximum=1"`
	TaxSell        float64               `yaml:"tax_sell" json:"tax_sell" validate:"gte=0,lt=1" jsonschema:"title=Tax Sell,description=Sell tax as a fraction of notional,minimum=0,maximum=1"`

	TradeLimitPct            float64 `yaml:"trade_limit_pct" json:"trade_limit_pct" validate:"gt=0,lte=1" jsonschema:"title=Trade Limit Pct,description=Maximum share of the 20 day average volume bought per entry,minimum=0,maximum=1"`
	MaxInvestmentPerTradePct float64 `yaml:"max_investment_per_trade_pct" json:"max_investment_per_trade_pct" validate:"gt=0,lte=1" jsonschema:"title=Max Investment Per Trade,description=Maximum share of working capital per entry,minimum=0,maximum=1"`
	MaxOpenPositions         int     `yaml:"max_open_positions" json:"max_open_positions" validate:"gte=1" jsonschema:"title=Max Open Positions,minimum=1"`
	LotSize                  int64   `yaml:"lot_size" json:"lot_size" validate:"gte=1" jsonschema:"title=Lot Size,description=Share quantities are multiples of this,minimum=1"`
	LiquidityThreshold       float64 `yaml:"liquidity_threshold" json:"liquidity_threshold" validate:"gt=0" jsonschema:"title=Liquidity Threshold,description=Maximum share of the day volume an order may take,minimum=0"`
	EntryMode                string  `yaml:"entry_mode" json:"entry_mode" validate:"oneof=close open" jsonschema:"title=Entry Mode,enum=close,enum=open"`
	ATRMultiplier            float64 `yaml:"atr_multiplier" json:"atr_multiplier" validate:"gt=0" jsonschema:"title=ATR Multiplier,description=Accepted for compatibility. The per phase table sets the ATR distance,minimum=0"`
	TrailingStopPct          float64 `yaml:"trailing_stop_pct" json:"trailing_stop_pct" validate:"gt=0,lt=1" jsonschema:"title=Trailing Stop Pct,minimum=0,maximum=1"`
	PartialProfitPct         float64 `yaml:"partial_profit_pct" json:"partial_profit_pct" validate:"gt=0,lte=1" jsonschema:"title=Partial Profit Pct,description=Share of the position sold on a take profit,minimum=0,maximum=1"`
	MinHoldingDays           int     `yaml:"min_holding_days" json:"min_holding_days" validate:"gte=0" jsonschema:"title=Min Holding Days,description=Calendar days a position is held before any exit,minimum=0"`
	PyramidLimit             int     `yaml:"pyramid_limit" json:"pyramid_limit" validate:"gte=0" jsonschema:"title=Pyramid Limit,description=Caps the per phase pyramid limit when positive. Zero uses the phase table,minimum=0"`
	MarketBollWidthFallback  float64 `yaml:"market_boll_width_fallback" json:"market_boll_width_fallback" validate:"gte=0" jsonschema:"title=Market Bollinger Width Fallback,minimum=0"`
	MarketADXFallback        float64 `yaml:"market_adx_fallback" json:"market_adx_fallback" validate:"gte=0" jsonschema:"title=Market ADX Fallback,minimum=0"`

	StartDate optional.Option[time.Time] `yaml:"-" json:"start_date" jsonschema:"title=Start Date,description=Optional first simulated date"`
	EndDate   optional.Option[time.Time] `yaml:"-" json:"end_date" jsonschema:"title=End Date,description=Optional last simulated date"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestEngineV1Config.
// Keys missing from the document keep the value already in c, so decoding into
// DefaultConfig() yields defaults for everything not set.
func (c *BacktestEngineV1Config) UnmarshalYAML(value *yaml.Node) error {
	type plain BacktestEngineV1Config

	config := struct {
		Plain     plain      `yaml:",inline"`
		StartDate *time.Time `yaml:"start_date"`
		EndDate   *time.Time `yaml:"end_date"`
	}{Plain: plain(*c)}

	if err := value.Decode(&config); err != nil {
		return err
	}

	*c = BacktestEngineV1Config(config.Plain)

	if config.StartDate != nil {
		c.StartDate = optional.Some(*config.StartDate)
	}

	if config.EndDate != nil {
		c.EndDate = optional.Some(*config.EndDate)
	}

	return nil
}

// ParseConfig decodes a YAML document on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (BacktestEngineV1Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse backtest config", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate checks field ranges, the date range and the engine version.
func (c *BacktestEngineV1Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}

	if c.StartDate.IsSome() && c.EndDate.IsSome() && c.EndDate.Unwrap().Before(c.StartDate.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "end_date is before start_date")
	}

	if c.EngineVersion != "" {
		if err := version.CheckVersionCompatibility(version.GetVersion(), c.EngineVersion); err != nil {
			return errors.Wrap(errors.ErrCodeVersionMismatch, "config targets an incompatible engine", err)
		}
	}

	return nil
}

// CommissionFee returns the fee model described by the broker and rate fields.
func (c *BacktestEngineV1Config) CommissionFee() commission_fee.CommissionFee {
	return commission_fee.GetCommissionFeeHandler(c.Broker, c.CommissionBuy, c.CommissionSell, c.TaxSell)
}

// ScreenerConfig returns the candidate screen settings.
func (c *BacktestEngineV1Config) ScreenerConfig() screener.Config {
	return screener.Config{
		MinVolumeMA20: c.MinVolumeMA20,
		MaxCandidates: c.MaxCandidates,
	}
}

// FeatureConfig returns the market fallback settings of feature preparation.
func (c *BacktestEngineV1Config) FeatureConfig() feature.Config {
	return feature.Config{
		MarketBollWidthFallback: c.MarketBollWidthFallback,
		MarketADXFallback:       c.MarketADXFallback,
	}
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date",
				}
			}

			if strings.Contains(t.String(), "commission_fee.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// DefaultConfig returns the production parameter set.
func DefaultConfig() BacktestEngineV1Config {
	featureDefaults := feature.DefaultConfig()
	screenerDefaults := screener.DefaultConfig()

	return BacktestEngineV1Config{
		EngineVersion:            "",
		MinVolumeMA20:            screenerDefaults.MinVolumeMA20,
		MaxCandidates:            screenerDefaults.MaxCandidates,
		InitialCapital:           1_000_000_000,
		Broker:                   commission_fee.BrokerPercentage,
		CommissionBuy:            0.001,
		CommissionSell:           0.001,
		TaxSell:                  0.001,
		TradeLimitPct:            0.01,
		MaxInvestmentPerTradePct: 0.10,
		MaxOpenPositions:         8,
		LotSize:                  100,
		LiquidityThreshold:       0.1,
		EntryMode:                EntryModeClose,
		ATRMultiplier:            2.0,
		TrailingStopPct:          0.05,
		PartialProfitPct:         0.4,
		MinHoldingDays:           2,
		PyramidLimit:             0,
		MarketBollWidthFallback:  featureDefaults.MarketBollWidthFallback,
		MarketADXFallback:        featureDefaults.MarketADXFallback,
		StartDate:                optional.None[time.Time](),
		EndDate:                  optional.None[time.Time](),
	}
}

// TestConfig returns DefaultConfig bounded to [startDate, endDate] with a zero fee broker.
func TestConfig(startDate time.Time, endDate time.Time, broker commission_fee.Broker) BacktestEngineV1Config {
	config := DefaultConfig()
	config.Broker = broker
	config.StartDate = optional.Some(startDate)
	config.EndDate = optional.Some(endDate)

	return config
}

// EmptyConfig returns a BacktestEngineV1Config with zero values
func EmptyConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		Broker:    commission_fee.BrokerPercentage,
		StartDate: optional.None[time.Time](),
		EndDate:   optional.None[time.Time](),
	}
}
