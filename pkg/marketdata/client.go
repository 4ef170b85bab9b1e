// Package marketdata downloads daily bars, joins the market index onto every ticker
// and writes the result as a parquet file the backtest data source can read.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/rxtech-lab/argo-signals/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-signals/pkg/marketdata/writer"
	"go.uber.org/zap"
)

// DefaultMarketTicker is the index joined onto every row when none is configured.
const DefaultMarketTicker = "VNINDEX"

type OnDownloadProgress = func(current float64, total float64, message string)

// ClientConfig holds the configuration for the market data client.
type ClientConfig struct {
	OutputPath    string `validate:"required"`
	PolygonApiKey string
}

// DownloadParams holds the parameters for a market data download request.
type DownloadParams struct {
	Tickers []string `validate:"required,min=1,dive,required"`
	// MarketTicker is fetched as daily bars and joined by date. Empty skips the join.
	MarketTicker string
	StartDate    time.Time `validate:"required"`
	EndDate      time.Time `validate:"required,gtfield=StartDate"`
	Timespan     Timespan  `validate:"required,timespan"`
}

// DownloadResult summarises a finished download.
type DownloadResult struct {
	OutputPath string
	Rows       int
	// MissingMarket counts rows written without a market index match.
	MissingMarket int
	// Empty lists the tickers the provider returned nothing for.
	Empty []string
}

// Client downloads bars from a provider and stores them with a writer.
type Client struct {
	provider   provider.Provider
	newWriter  func(path string) writer.MarketDataWriter
	config     ClientConfig
	validate   *validator.Validate
	log        *logger.Logger
	onProgress OnDownloadProgress
}

// NewClient creates a polygon backed client.
func NewClient(config ClientConfig, log *logger.Logger, onProgress OnDownloadProgress) (*Client, error) {
	polygonClient, err := provider.NewPolygonClient(config.PolygonApiKey)
	if err != nil {
		return nil, err
	}

	return NewClientWithProvider(polygonClient, config, log, onProgress)
}

// NewClientWithProvider creates a client over any provider.
func NewClientWithProvider(p provider.Provider, config ClientConfig, log *logger.Logger, onProgress OnDownloadProgress) (*Client, error) {
	validate := validator.New()
	if err := validate.RegisterValidation("timespan", func(fl validator.FieldLevel) bool {
		return Timespan(fl.Field().String()).Valid()
	}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to register timespan validation", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	if onProgress == nil {
		onProgress = func(float64, float64, string) {}
	}

	return &Client{
		provider: p,
		newWriter: func(path string) writer.MarketDataWriter {
			return writer.NewDuckDBWriter(path)
		},
		config:     config,
		validate:   validate,
		log:        log,
		onProgress: onProgress,
	}, nil
}

// Download fetches every ticker, attaches market_close, market_high and market_low
// from the market index of the same date and writes one parquet file.
func (c *Client) Download(ctx context.Context, params DownloadParams) (result DownloadResult, err error) {
	if err := c.validate.Struct(params); err != nil {
		return DownloadResult{}, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	tickers := normalizeTickers(params.Tickers)
	total := float64(len(tickers))

	var market map[time.Time]types.MarketBar

	if params.MarketTicker != "" {
		total++

		c.onProgress(0, total, fmt.Sprintf("Downloading %s", params.MarketTicker))

		market, err = c.marketIndex(ctx, params)
		if err != nil {
			return DownloadResult{}, err
		}
	}

	w := c.newWriter(c.config.OutputPath)
	if err := w.Initialize(); err != nil {
		return DownloadResult{}, err
	}

	defer func() {
		if cerr := w.Close(); cerr != nil {
			c.log.Warn("failed to close market data writer", zap.Error(cerr))
		}
	}()

	done := total - float64(len(tickers))

	for _, ticker := range tickers {
		c.onProgress(done, total, fmt.Sprintf("Downloading %s", ticker))

		count := 0

		for bar, err := range c.provider.Bars(ctx, ticker, params.StartDate, params.EndDate, params.Timespan.Multiplier(), params.Timespan.Timespan()) {
			if err != nil {
				return DownloadResult{}, err
			}

			if market != nil {
				if !joinMarket(&bar, market) {
					result.MissingMarket++
				}
			}

			if err := w.Write(bar); err != nil {
				return DownloadResult{}, err
			}

			count++
		}

		if count == 0 {
			c.log.Warn("no bars returned", zap.String("ticker", ticker))
			result.Empty = append(result.Empty, ticker)
		}

		result.Rows += count
		done++
	}

	result.OutputPath, err = w.Finalize()
	if err != nil {
		return DownloadResult{}, err
	}

	c.onProgress(total, total, "Done")

	c.log.Info("market data written",
		zap.String("path", result.OutputPath),
		zap.Int("rows", result.Rows),
		zap.Int("missing_market", result.MissingMarket),
	)

	return result, nil
}

func (c *Client) marketIndex(ctx context.Context, params DownloadParams) (map[time.Time]types.MarketBar, error) {
	market := make(map[time.Time]types.MarketBar)

	for bar, err := range c.provider.Bars(ctx, params.MarketTicker, params.StartDate, params.EndDate, 1, models.Day) {
		if err != nil {
			return nil, err
		}

		market[types.NormalizeDate(bar.Time)] = bar
	}

	if len(market) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "no bars for market ticker %s", params.MarketTicker)
	}

	return market, nil
}

// joinMarket reports whether an index bar exists for the bar's date.
func joinMarket(bar *types.MarketBar, market map[time.Time]types.MarketBar) bool {
	index, ok := market[types.NormalizeDate(bar.Time)]
	if !ok {
		return false
	}

	if bar.Extras == nil {
		bar.Extras = make(map[string]float64, 3)
	}

	bar.Extras[types.FieldMarketClose] = index.Close
	bar.Extras[types.FieldMarketHigh] = index.High.TakeOr(index.Close)
	bar.Extras[types.FieldMarketLow] = index.Low.TakeOr(index.Close)

	return true
}

func normalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))

	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}

		seen[t] = true
		out = append(out, t)
	}

	return out
}
