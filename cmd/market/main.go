package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/pkg/marketdata"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// request is a resolved download: where to write and what to fetch.
type request struct {
	output string
	params marketdata.DownloadParams
}

// resolveRequest reads the download from --config when given, otherwise from flags.
func resolveRequest(cmd *cli.Command) (request, error) {
	if path := cmd.String("config"); path != "" {
		config, err := marketdata.LoadDownloadConfig(path)
		if err != nil {
			return request{}, err
		}

		params, err := config.ToDownloadParams()
		if err != nil {
			return request{}, err
		}

		return request{output: config.Output, params: params}, nil
	}

	var tickers []string

	for _, value := range cmd.StringSlice("tickers") {
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
	}

	if len(tickers) == 0 {
		return request{}, fmt.Errorf("at least one ticker is required, use --tickers or --config")
	}

	start := cmd.Timestamp("start")
	if start.IsZero() {
		return request{}, fmt.Errorf("--start is required without --config")
	}

	return request{
		output: cmd.String("output"),
		params: marketdata.DownloadParams{
			Tickers:      tickers,
			MarketTicker: cmd.String("market"),
			StartDate:    start,
			EndDate:      cmd.Timestamp("end"),
			Timespan:     marketdata.ParseTimespan(cmd.String("interval")),
		},
	}, nil
}

// progressReporter draws a progress bar created on the first callback.
func progressReporter() (marketdata.OnDownloadProgress, func()) {
	var bar *progressbar.ProgressBar

	report := func(current, total float64, message string) {
		if bar == nil {
			bar = progressbar.NewOptions(int(total),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}

		bar.Describe(message)
		_ = bar.Set(int(current))
	}

	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}

	return report, finish
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLoggerWithLevel(cmd.String("log-level"))
	if err != nil {
		return err
	}

	defer log.Sync()

	req, err := resolveRequest(cmd)
	if err != nil {
		return err
	}

	report, finish := progressReporter()

	client, err := marketdata.NewClient(marketdata.ClientConfig{
		OutputPath:    req.output,
		PolygonApiKey: os.Getenv("POLYGON_API_KEY"),
	}, log, report)
	if err != nil {
		return fmt.Errorf("failed to create market data client: %w", err)
	}

	log.Info("starting download",
		zap.Strings("tickers", req.params.Tickers),
		zap.String("market", req.params.MarketTicker),
		zap.Time("start", req.params.StartDate),
		zap.Time("end", req.params.EndDate),
	)

	result, err := client.Download(ctx, req.params)

	finish()

	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("\nWrote %d rows to %s\n", result.Rows, result.OutputPath)

	if result.MissingMarket > 0 {
		fmt.Printf("%d rows have no %s bar for their date\n", result.MissingMarket, req.params.MarketTicker)
	}

	if len(result.Empty) > 0 {
		fmt.Printf("No data for: %s\n", strings.Join(result.Empty, ", "))
	}

	return nil
}

func newApp() *cli.Command {
	dateLayouts := cli.TimestampConfig{Layouts: []string{"2006-01-02", time.RFC3339}}

	return &cli.Command{
		Name:  "market",
		Usage: "Download historical market data into parquet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download daily bars and join the market index onto every row",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "YAML download config, overrides the other flags",
					},
					&cli.StringSliceFlag{
						Name:    "tickers",
						Aliases: []string{"t"},
						Usage:   "Ticker symbols, repeated or comma separated",
					},
					&cli.StringFlag{
						Name:  "market",
						Usage: "Market index ticker joined by date",
						Value: marketdata.DefaultMarketTicker,
					},
					&cli.TimestampFlag{
						Name:    "start",
						Aliases: []string{"s"},
						Usage:   "Start date in `YYYY-MM-DD` format",
						Config:  dateLayouts,
					},
					&cli.TimestampFlag{
						Name:    "end",
						Aliases: []string{"e"},
						Usage:   "End date in `YYYY-MM-DD` format. Defaults to today.",
						Value:   time.Now(),
						Config:  dateLayouts,
					},
					&cli.StringFlag{
						Name:  "interval",
						Usage: "Bar interval (1m, 5m, 15m, 30m, 1h, 1d, 1w)",
						Value: string(marketdata.TimespanOneDay),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Parquet file to write",
						Value:   "data/market.parquet",
					},
				},
				Action: downloadAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the download config file",
				Action: func(_ context.Context, cmd *cli.Command) error {
					schema, err := (&marketdata.DownloadConfig{}).GenerateSchemaJSON()
					if err != nil {
						return err
					}

					_, err = fmt.Fprintln(cmd.Root().Writer, schema)

					return err
				},
			},
		},
	}
}

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
