package provider

import (
	"context"
	"iter"
	"time"

	"github.com/moznion/go-optional"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// PageLimit is the page size requested from the aggregates endpoint.
const PageLimit = 50000

// PolygonAggsIterator is the part of the polygon iterator the client reads.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// PolygonAPIClient is the part of the polygon REST client used for downloads.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

type polygonRESTClient struct {
	client *polygon.Client
}

func (c *polygonRESTClient) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return c.client.ListAggs(ctx, params, options...)
}

type PolygonClient struct {
	apiClient PolygonAPIClient
}

func NewPolygonClient(apiKey string) (*PolygonClient, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon api key is required")
	}

	return NewPolygonClientWithAPI(&polygonRESTClient{client: polygon.New(apiKey)}), nil
}

// NewPolygonClientWithAPI builds a client over an existing API implementation.
func NewPolygonClientWithAPI(apiClient PolygonAPIClient) *PolygonClient {
	return &PolygonClient{apiClient: apiClient}
}

func (c *PolygonClient) Bars(ctx context.Context, ticker string, start time.Time, end time.Time, multiplier int, timespan models.Timespan) iter.Seq2[types.MarketBar, error] {
	return func(yield func(types.MarketBar, error) bool) {
		//nolint:exhaustruct // third-party struct with many optional fields
		params := models.ListAggsParams{
			Ticker:     ticker,
			Multiplier: multiplier,
			Timespan:   timespan,
			From:       models.Millis(start),
			To:         models.Millis(end),
		}.WithLimit(PageLimit)

		aggs := c.apiClient.ListAggs(ctx, params)

		for aggs.Next() {
			if err := ctx.Err(); err != nil {
				yield(types.MarketBar{}, err)

				return
			}

			agg := aggs.Item()

			bar := types.MarketBar{
				Ticker: ticker,
				Time:   time.Time(agg.Timestamp).UTC(),
				Open:   optional.Some(agg.Open),
				High:   optional.Some(agg.High),
				Low:    optional.Some(agg.Low),
				Close:  agg.Close,
				Volume: agg.Volume,
				Extras: map[string]float64{},
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := aggs.Err(); err != nil {
			yield(types.MarketBar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to list aggregates for %s", ticker))
		}
	}
}
