package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// DownloadConfig is the file form of a download request.
type DownloadConfig struct {
	Tickers      []string `yaml:"tickers" json:"tickers" jsonschema:"title=Tickers,description=Symbols to download,required" validate:"required,min=1,dive,required"`
	MarketTicker string   `yaml:"market_ticker" json:"market_ticker" jsonschema:"title=Market Ticker,description=Index joined onto every row,default=VNINDEX"`
	StartDate    string   `yaml:"start_date" json:"start_date" jsonschema:"title=Start Date,format=date,required" validate:"required"`
	EndDate      string   `yaml:"end_date" json:"end_date" jsonschema:"title=End Date,format=date,required" validate:"required"`
	Interval     string   `yaml:"interval" json:"interval" jsonschema:"title=Interval,enum=1m,enum=5m,enum=15m,enum=30m,enum=1h,enum=1d,enum=1w,default=1d" validate:"omitempty,oneof=1m 5m 15m 30m 1h 1d 1w"`
	Output       string   `yaml:"output" json:"output" jsonschema:"title=Output,description=Parquet file to write,default=data/market.parquet"`
}

// LoadDownloadConfig reads a YAML download config and fills its defaults.
func LoadDownloadConfig(path string) (*DownloadConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read %s", path)
	}

	return ParseDownloadConfig(data)
}

// ParseDownloadConfig parses YAML and validates it.
func ParseDownloadConfig(data []byte) (*DownloadConfig, error) {
	config := DownloadConfig{
		MarketTicker: DefaultMarketTicker,
		Interval:     string(TimespanOneDay),
		Output:       "data/market.parquet",
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse download config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// GenerateSchemaJSON returns the JSON schema of the download config file.
func (c *DownloadConfig) GenerateSchemaJSON() (string, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
	}

	schema := reflector.Reflect(c)
	schema.Title = "market-download-config"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	return string(schemaBytes), nil
}

func (c *DownloadConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid download config", err)
	}

	if _, _, err := c.dates(); err != nil {
		return err
	}

	return nil
}

// ToDownloadParams converts the config into client parameters.
func (c *DownloadConfig) ToDownloadParams() (DownloadParams, error) {
	start, end, err := c.dates()
	if err != nil {
		return DownloadParams{}, err
	}

	return DownloadParams{
		Tickers:      c.Tickers,
		MarketTicker: c.MarketTicker,
		StartDate:    start,
		EndDate:      end,
		Timespan:     ParseTimespan(c.Interval),
	}, nil
}

func (c *DownloadConfig) dates() (time.Time, time.Time, error) {
	start, err := ParseDate(c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	end, err := ParseDate(c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "end date %s must be after start date %s", c.EndDate, c.StartDate)
	}

	return start, end, nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value), err)
	}

	return t, nil
}
