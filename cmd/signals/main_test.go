package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rxtech-lab/argo-signals/internal/config"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/scheduler"
	"github.com/rxtech-lab/argo-signals/internal/version"
	"github.com/rxtech-lab/argo-signals/mocks"
	"github.com/rxtech-lab/argo-signals/pkg/marketdata/writer"
	"github.com/stretchr/testify/suite"
)

type SignalsCommandTestSuite struct {
	suite.Suite
	dir      string
	dataPath string
}

func TestSignalsCommandSuite(t *testing.T) {
	suite.Run(t, new(SignalsCommandTestSuite))
}

func (suite *SignalsCommandTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.dataPath = filepath.Join(suite.dir, "market.parquet")

	w := writer.NewDuckDBWriter(suite.dataPath)
	suite.Require().NoError(w.Initialize())

	defer w.Close()

	for _, bar := range mocks.GenerateYears([]string{"AAA", "BBB", "CCC"}) {
		suite.Require().NoError(w.Write(bar))
	}

	_, err := w.Finalize()
	suite.Require().NoError(err)

	suite.T().Setenv("DATA_PARQUET_PATH", suite.dataPath)
	suite.T().Setenv("ALERT_DB_PATH", filepath.Join(suite.dir, "alerts.duckdb"))
	suite.T().Setenv("LOG_LEVEL", "error")
}

func (suite *SignalsCommandTestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer

	app := newApp()
	app.Writer = &out

	err := app.Run(context.Background(), append([]string{"signals"}, args...))

	return out.String(), err
}

func (suite *SignalsCommandTestSuite) TestVersion() {
	out, err := suite.run("version")
	suite.Require().NoError(err)
	suite.Equal(version.GetVersion()+"\n", out)
}

func (suite *SignalsCommandTestSuite) TestBacktest() {
	results := filepath.Join(suite.dir, "results")

	out, err := suite.run("backtest", "--quiet", "--results", results)
	suite.Require().NoError(err)
	suite.Contains(out, "Backtest summary")
	suite.Contains(out, "Trading days")
	suite.Contains(out, "trades: ")
}

func (suite *SignalsCommandTestSuite) TestBacktestMissingData() {
	_, err := suite.run("backtest", "--quiet", "--data", filepath.Join(suite.dir, "missing.parquet"))
	suite.Error(err)
}

func (suite *SignalsCommandTestSuite) TestExport() {
	tests := []struct {
		name string
		file string
	}{
		{"csv", "signals.csv"},
		{"parquet", "signals.parquet"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			output := filepath.Join(suite.dir, "out", tc.file)

			out, err := suite.run("export", "--quiet", "-o", output)
			suite.Require().NoError(err)
			suite.Contains(out, "signals to "+output)
			suite.FileExists(output)
		})
	}
}

func (suite *SignalsCommandTestSuite) TestExportMatchesBacktest() {
	result, err := runBacktest(context.Background(), logger.NewNopLogger(), backtestOptions{DataPath: suite.dataPath})
	suite.Require().NoError(err)

	output := filepath.Join(suite.dir, "signals.parquet")
	count, err := writeSignals(context.Background(), output, result)
	suite.Require().NoError(err)
	suite.Equal(2*len(result.Trades), count)

	db, err := sql.Open("duckdb", "")
	suite.Require().NoError(err)

	defer db.Close()

	var rows int
	suite.Require().NoError(db.QueryRow("SELECT COUNT(*) FROM read_parquet('" + output + "')").Scan(&rows))
	suite.Equal(count, rows)
}

func (suite *SignalsCommandTestSuite) TestEngineConfigFile() {
	path := filepath.Join(suite.dir, "engine.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte("broker: zero_commission\nmin_volume_ma20: 0\n"), 0644))

	cfg, err := loadEngineConfig(path)
	suite.Require().NoError(err)
	suite.Equal(0.0, cfg.MinVolumeMA20)

	_, err = loadEngineConfig(filepath.Join(suite.dir, "missing.yaml"))
	suite.Error(err)

	_, err = suite.run("backtest", "--quiet", "--config", path)
	suite.NoError(err)
}

func (suite *SignalsCommandTestSuite) TestSchema() {
	dir := filepath.Join(suite.dir, "config")

	out, err := suite.run("schema", "--dir", dir)
	suite.Require().NoError(err)
	suite.Contains(out, schemaFileName)
	suite.Contains(out, sampleFileName)

	sample, err := os.ReadFile(filepath.Join(dir, sampleFileName))
	suite.Require().NoError(err)

	_, err = loadEngineConfig(filepath.Join(dir, sampleFileName))
	suite.NoError(err)
	suite.Contains(string(sample), "$schema="+schemaFileName)

	// an existing sample is kept
	written, err := writeSchema(dir)
	suite.Require().NoError(err)
	suite.Len(written, 1)
}

func (suite *SignalsCommandTestSuite) TestAlertsForceTestDryRun() {
	out, err := suite.run("alerts", "--dry-run", "--force-test", "--mode", "intraday")
	suite.Require().NoError(err)
	suite.Contains(out, "INTRADAY alerts")
	suite.Contains(out, "TEST")
	suite.Contains(out, "sent 1 of 1")
	suite.NoFileExists(filepath.Join(suite.dir, "alerts.duckdb"))
}

func (suite *SignalsCommandTestSuite) TestAlertsUseAlertStore() {
	_, err := suite.run("alerts", "--force-test")
	suite.Require().NoError(err)
	suite.FileExists(filepath.Join(suite.dir, "alerts.duckdb"))
}

func (suite *SignalsCommandTestSuite) TestAlertsInvalidMode() {
	_, err := suite.run("alerts", "--dry-run", "--mode", "weekly")
	suite.Error(err)
}

func (suite *SignalsCommandTestSuite) TestBuildChannels() {
	log := logger.NewNopLogger()

	tests := []struct {
		name     string
		environ  map[string]string
		dryRun   bool
		expected []string
	}{
		{"nothing configured", map[string]string{}, false, []string{"log"}},
		{"dry run", map[string]string{"SMTP_HOST": "smtp.example.com", "ALERT_FROM": "a@example.com", "ALERT_TO": "b@example.com"}, true, []string{"log"}},
		{"email", map[string]string{"SMTP_HOST": "smtp.example.com", "ALERT_FROM": "a@example.com", "ALERT_TO": "b@example.com"}, false, []string{"email"}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			cfg, err := config.FromMap(tc.environ)
			suite.Require().NoError(err)

			channels, err := buildChannels(cfg, log, tc.dryRun)
			suite.Require().NoError(err)

			names := make([]string, 0, len(channels))
			for _, ch := range channels {
				names = append(names, ch.Name())
			}

			suite.Equal(tc.expected, names)
		})
	}
}

func (suite *SignalsCommandTestSuite) TestOpenStore() {
	cfg, err := config.FromMap(map[string]string{"ALERT_DB_PATH": filepath.Join(suite.dir, "store", "alerts.duckdb")})
	suite.Require().NoError(err)

	store, err := openStore(context.Background(), cfg, false)
	suite.Require().NoError(err)
	suite.NoError(store.Close())
	suite.FileExists(filepath.Join(suite.dir, "store", "alerts.duckdb"))

	cfg.RedisURL = "not a url"
	_, err = openStore(context.Background(), cfg, false)
	suite.Error(err)
}

func (suite *SignalsCommandTestSuite) TestRegisterJobs() {
	tests := []struct {
		mode     string
		expected int
	}{
		{config.RunModeBoth, 2},
		{config.RunModeIntraday, 1},
		{config.RunModeEOD, 1},
	}

	for _, tc := range tests {
		suite.Run(tc.mode, func() {
			cfg, err := config.FromMap(map[string]string{"RUN_MODE": tc.mode})
			suite.Require().NoError(err)

			service, err := newAlertService(context.Background(), cfg, logger.NewNopLogger(), true, false)
			suite.Require().NoError(err)

			defer service.Close()

			suite.Equal([]string{"log"}, service.router.Channels())

			n, err := registerJobs(scheduler.New(nil, cfg.Location(), 0), cfg, service)
			suite.Require().NoError(err)
			suite.Equal(tc.expected, n)
		})
	}
}
