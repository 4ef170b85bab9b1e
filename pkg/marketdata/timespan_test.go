package marketdata

import (
	"testing"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"
)

type TimespanTestSuite struct {
	suite.Suite
}

func TestTimespanSuite(t *testing.T) {
	suite.Run(t, new(TimespanTestSuite))
}

func (suite *TimespanTestSuite) TestConversion() {
	tests := []struct {
		timespan   Timespan
		multiplier int
		polygon    models.Timespan
	}{
		{TimespanOneMinute, 1, models.Minute},
		{TimespanFiveMinutes, 5, models.Minute},
		{TimespanFifteenMinutes, 15, models.Minute},
		{TimespanThirtyMinutes, 30, models.Minute},
		{TimespanOneHour, 1, models.Hour},
		{TimespanOneDay, 1, models.Day},
		{TimespanOneWeek, 1, models.Week},
		{Timespan("unknown"), 1, models.Day},
	}

	for _, tc := range tests {
		suite.Run(string(tc.timespan), func() {
			suite.Equal(tc.multiplier, tc.timespan.Multiplier())
			suite.Equal(tc.polygon, tc.timespan.Timespan())
		})
	}
}

func (suite *TimespanTestSuite) TestParseTimespan() {
	tests := []struct {
		input    string
		expected Timespan
		valid    bool
	}{
		{"", TimespanOneDay, true},
		{" 1D ", TimespanOneDay, true},
		{"15M", TimespanFifteenMinutes, true},
		{"1w", TimespanOneWeek, true},
		{"2d", Timespan("2d"), false},
	}

	for _, tc := range tests {
		suite.Run(tc.input, func() {
			parsed := ParseTimespan(tc.input)
			suite.Equal(tc.expected, parsed)
			suite.Equal(tc.valid, parsed.Valid())
		})
	}
}
