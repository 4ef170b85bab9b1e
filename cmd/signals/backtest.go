package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine"
	engine_v1 "github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-signals/internal/export"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

type backtestOptions struct {
	DataPath      string
	ConfigPath    string
	ResultsFolder string
	Start         optional.Option[time.Time]
	End           optional.Option[time.Time]
	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
}

// loadEngineConfig reads a YAML engine config, or returns the defaults for an empty path.
func loadEngineConfig(path string) (engine_v1.BacktestEngineV1Config, error) {
	if path == "" {
		return engine_v1.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return engine_v1.BacktestEngineV1Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read %s", path)
	}

	return engine_v1.ParseConfig(data)
}

func runBacktest(ctx context.Context, log *logger.Logger, opts backtestOptions) (engine.Result, error) {
	cfg, err := loadEngineConfig(opts.ConfigPath)
	if err != nil {
		return engine.Result{}, err
	}

	ds, err := datasource.NewDataSource(":memory:", log)
	if err != nil {
		return engine.Result{}, err
	}
	defer ds.Close()

	if err := ds.Initialize(opts.DataPath); err != nil {
		return engine.Result{}, err
	}

	bt := engine_v1.NewBacktestEngineV1(log)
	defer bt.Close()

	if err := bt.InitializeWithConfig(cfg); err != nil {
		return engine.Result{}, err
	}

	if err := bt.SetDataSource(ds); err != nil {
		return engine.Result{}, err
	}

	bt.SetDataPath(opts.DataPath)

	if err := bt.SetResultsFolder(opts.ResultsFolder); err != nil {
		return engine.Result{}, err
	}

	var callbacks engine.LifecycleCallbacks

	if opts.Progress != nil {
		var bar *progressbar.ProgressBar

		onStart := engine.OnBacktestStartCallback(func(_ string, totalDays int) error {
			bar = progressbar.NewOptions(totalDays,
				progressbar.OptionSetWriter(opts.Progress),
				progressbar.OptionSetDescription("Backtesting"),
				progressbar.OptionShowCount(),
			)

			return nil
		})
		onDay := engine.OnProcessDayCallback(func(current, _ int) error {
			return bar.Set(current)
		})
		onEnd := engine.OnBacktestEndCallback(func(error) {
			if bar != nil {
				_ = bar.Finish()
			}
		})

		callbacks.OnBacktestStart = &onStart
		callbacks.OnProcessDay = &onDay
		callbacks.OnBacktestEnd = &onEnd
	}

	return bt.Run(ctx, opts.Start, opts.End, callbacks)
}

// backtestFlags are shared by backtest and export.
func backtestFlags() []cli.Flag {
	dateLayouts := cli.TimestampConfig{Layouts: []string{"2006-01-02", time.RFC3339}}

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Market data parquet or CSV file. Defaults to DATA_PARQUET_PATH",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Engine YAML config. Defaults to BACKTEST_CONFIG, then built-in defaults",
		},
		&cli.TimestampFlag{
			Name:   "start",
			Usage:  "First simulated date (`YYYY-MM-DD`)",
			Config: dateLayouts,
		},
		&cli.TimestampFlag{
			Name:   "end",
			Usage:  "Last simulated date (`YYYY-MM-DD`)",
			Config: dateLayouts,
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Hide the progress bar",
		},
	}
}

func backtestOptionsFrom(cmd *cli.Command, dataPath, configPath string) backtestOptions {
	opts := backtestOptions{
		DataPath:   dataPath,
		ConfigPath: configPath,
		Start:      optional.None[time.Time](),
		End:        optional.None[time.Time](),
		Progress:   os.Stderr,
	}

	if cmd.IsSet("data") {
		opts.DataPath = cmd.String("data")
	}

	if cmd.IsSet("config") {
		opts.ConfigPath = cmd.String("config")
	}

	if cmd.IsSet("start") {
		opts.Start = optional.Some(cmd.Timestamp("start"))
	}

	if cmd.IsSet("end") {
		opts.End = optional.Some(cmd.Timestamp("end"))
	}

	if cmd.Bool("quiet") {
		opts.Progress = nil
	}

	return opts
}

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Run the screener and portfolio simulation over the market data",
		Flags: append(backtestFlags(),
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"r"},
				Usage:   "Folder for trades.parquet and stats.yaml. Nothing is written when empty",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			defer log.Sync()

			opts := backtestOptionsFrom(cmd, cfg.DataParquetPath, cfg.BacktestConfigPath)
			opts.ResultsFolder = cmd.String("results")

			result, err := runBacktest(ctx, log, opts)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.Root().Writer, renderStats(result.Stats))

			return err
		},
	}
}

// writeSignals writes the signal rows of trades to path, as parquet for .parquet files and CSV otherwise.
func writeSignals(ctx context.Context, path string, result engine.Result) (int, error) {
	records := export.TradesToSignals(result.Trades)

	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return len(records), export.WriteParquet(ctx, path, records)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, errors.Wrap(errors.ErrCodeExportFailed, "failed to create output directory", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeExportFailed, "failed to create signals file", err)
	}
	defer f.Close()

	if err := export.WriteCSV(f, records); err != nil {
		return 0, errors.Wrap(errors.ErrCodeExportFailed, "failed to write signals", err)
	}

	return len(records), f.Close()
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Backtest and write BUY_NEW / SELL signal rows as CSV or parquet",
		Flags: append(backtestFlags(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file. A .parquet extension selects parquet",
				Value:   "signals.csv",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			defer log.Sync()

			result, err := runBacktest(ctx, log, backtestOptionsFrom(cmd, cfg.DataParquetPath, cfg.BacktestConfigPath))
			if err != nil {
				return err
			}

			output := cmd.String("output")

			count, err := writeSignals(ctx, output, result)
			if err != nil {
				return err
			}

			log.Info("Signals exported",
				zap.String("path", output),
				zap.Int("rows", count),
				zap.Int("trades", len(result.Trades)),
			)

			_, err = fmt.Fprintf(cmd.Root().Writer, "Wrote %d signals to %s\n", count, output)

			return err
		},
	}
}
