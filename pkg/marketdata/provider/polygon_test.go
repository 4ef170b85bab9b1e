package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-signals/internal/types"
	pkgerrors "github.com/rxtech-lab/argo-signals/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type mockPolygonAPIClient struct {
	iterator PolygonAggsIterator
	params   *models.ListAggsParams
}

func (m *mockPolygonAPIClient) ListAggs(_ context.Context, params *models.ListAggsParams, _ ...models.RequestOption) PolygonAggsIterator {
	m.params = params

	return m.iterator
}

type mockPolygonIterator struct {
	aggs  []models.Agg
	index int
	err   error
}

func (m *mockPolygonIterator) Next() bool {
	if m.index < len(m.aggs) {
		m.index++

		return true
	}

	return false
}

func (m *mockPolygonIterator) Item() models.Agg {
	if m.index > 0 && m.index <= len(m.aggs) {
		return m.aggs[m.index-1]
	}

	return models.Agg{}
}

func (m *mockPolygonIterator) Err() error {
	return m.err
}

type PolygonClientTestSuite struct {
	suite.Suite
}

func TestPolygonClientSuite(t *testing.T) {
	suite.Run(t, new(PolygonClientTestSuite))
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func agg(d int, c float64) models.Agg {
	return models.Agg{
		Open:      c - 1,
		High:      c + 1,
		Low:       c - 2,
		Close:     c,
		Volume:    1000,
		Timestamp: models.Millis(day(d)),
	}
}

func collect(client *PolygonClient, ctx context.Context) ([]types.MarketBar, error) {
	var bars []types.MarketBar

	for bar, err := range client.Bars(ctx, "FPT", day(3), day(7), 1, models.Day) {
		if err != nil {
			return bars, err
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

func (suite *PolygonClientTestSuite) TestNewPolygonClient() {
	client, err := NewPolygonClient("key")
	suite.Require().NoError(err)
	suite.NotNil(client.apiClient)

	_, err = NewPolygonClient("")
	suite.Error(err)
	suite.True(pkgerrors.HasCode(err, pkgerrors.ErrCodeInvalidConfiguration))
}

func (suite *PolygonClientTestSuite) TestBars() {
	api := &mockPolygonAPIClient{iterator: &mockPolygonIterator{aggs: []models.Agg{agg(3, 100), agg(4, 102)}}}
	client := NewPolygonClientWithAPI(api)

	bars, err := collect(client, context.Background())
	suite.Require().NoError(err)
	suite.Require().Len(bars, 2)

	suite.Equal("FPT", api.params.Ticker)
	suite.Equal(models.Day, api.params.Timespan)
	suite.Equal(1, api.params.Multiplier)

	suite.Equal("FPT", bars[0].Ticker)
	suite.True(day(3).Equal(bars[0].Time))
	suite.Equal(100.0, bars[0].Close)
	suite.Equal(99.0, bars[0].Open.Unwrap())
	suite.Equal(101.0, bars[0].High.Unwrap())
	suite.Equal(98.0, bars[0].Low.Unwrap())
	suite.Equal(1000.0, bars[0].Volume)
	suite.Equal(102.0, bars[1].Close)
}

func (suite *PolygonClientTestSuite) TestIteratorError() {
	api := &mockPolygonAPIClient{iterator: &mockPolygonIterator{aggs: []models.Agg{agg(3, 100)}, err: errors.New("rate limited")}}

	bars, err := collect(NewPolygonClientWithAPI(api), context.Background())
	suite.Len(bars, 1)
	suite.Error(err)
	suite.True(pkgerrors.HasCode(err, pkgerrors.ErrCodeMarketDataFetchFailed))
	suite.Contains(err.Error(), "rate limited")
}

func (suite *PolygonClientTestSuite) TestCancelledContext() {
	api := &mockPolygonAPIClient{iterator: &mockPolygonIterator{aggs: []models.Agg{agg(3, 100), agg(4, 101)}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bars, err := collect(NewPolygonClientWithAPI(api), ctx)
	suite.Empty(bars)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *PolygonClientTestSuite) TestStopEarly() {
	iterator := &mockPolygonIterator{aggs: []models.Agg{agg(3, 100), agg(4, 101), agg(5, 102)}}
	client := NewPolygonClientWithAPI(&mockPolygonAPIClient{iterator: iterator})

	for range client.Bars(context.Background(), "FPT", day(3), day(7), 1, models.Day) {
		break
	}

	suite.Equal(1, iterator.index)
}
