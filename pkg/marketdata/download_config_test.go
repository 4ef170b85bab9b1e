package marketdata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type DownloadConfigTestSuite struct {
	suite.Suite
}

func TestDownloadConfigSuite(t *testing.T) {
	suite.Run(t, new(DownloadConfigTestSuite))
}

func (suite *DownloadConfigTestSuite) TestDefaults() {
	config, err := ParseDownloadConfig([]byte(`
tickers: [FPT, HPG]
start_date: 2024-01-01
end_date: 2024-06-30
`))
	suite.Require().NoError(err)
	suite.Equal(DefaultMarketTicker, config.MarketTicker)
	suite.Equal("1d", config.Interval)
	suite.Equal("data/market.parquet", config.Output)

	params, err := config.ToDownloadParams()
	suite.Require().NoError(err)
	suite.Equal([]string{"FPT", "HPG"}, params.Tickers)
	suite.Equal(TimespanOneDay, params.Timespan)
	suite.True(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(params.StartDate))
	suite.True(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC).Equal(params.EndDate))
}

func (suite *DownloadConfigTestSuite) TestInvalid() {
	tests := []struct {
		name string
		yaml string
	}{
		{"no tickers", "start_date: 2024-01-01\nend_date: 2024-02-01\n"},
		{"bad interval", "tickers: [FPT]\nstart_date: 2024-01-01\nend_date: 2024-02-01\ninterval: 2d\n"},
		{"bad date", "tickers: [FPT]\nstart_date: 01/01/2024\nend_date: 2024-02-01\n"},
		{"reversed", "tickers: [FPT]\nstart_date: 2024-03-01\nend_date: 2024-02-01\n"},
		{"not yaml", "tickers: [FPT"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := ParseDownloadConfig([]byte(tc.yaml))
			suite.Error(err)
			suite.True(pkgerrors.HasCode(err, pkgerrors.ErrCodeInvalidConfiguration))
		})
	}
}

func (suite *DownloadConfigTestSuite) TestParseDate() {
	t, err := ParseDate("2024-06-07T09:15:00Z")
	suite.Require().NoError(err)
	suite.Equal(9, t.Hour())

	_, err = ParseDate("yesterday")
	suite.Error(err)
}

func (suite *DownloadConfigTestSuite) TestLoad() {
	path := filepath.Join(suite.T().TempDir(), "download.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte("tickers: [VNM]\nstart_date: 2024-01-01\nend_date: 2024-02-01\noutput: out.parquet\n"), 0644))

	config, err := LoadDownloadConfig(path)
	suite.Require().NoError(err)
	suite.Equal("out.parquet", config.Output)

	_, err = LoadDownloadConfig(filepath.Join(suite.T().TempDir(), "missing.yaml"))
	suite.Error(err)
}

func (suite *DownloadConfigTestSuite) TestSchema() {
	schema, err := (&DownloadConfig{}).GenerateSchemaJSON()
	suite.Require().NoError(err)
	suite.Contains(schema, `"market_ticker"`)
	suite.Contains(schema, `"market-download-config"`)
	suite.Contains(schema, `"tickers"`)
}
