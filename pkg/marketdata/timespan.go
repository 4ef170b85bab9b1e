package marketdata

import (
	"strings"

	"github.com/polygon-io/client-go/rest/models"
)

// Timespan is a bar interval as written in configs and flags.
type Timespan string

const (
	TimespanOneMinute      Timespan = "1m"
	TimespanFiveMinutes    Timespan = "5m"
	TimespanFifteenMinutes Timespan = "15m"
	TimespanThirtyMinutes  Timespan = "30m"
	TimespanOneHour        Timespan = "1h"
	TimespanOneDay         Timespan = "1d"
	TimespanOneWeek        Timespan = "1w"
)

type aggregate struct {
	multiplier int
	span       models.Timespan
}

var aggregates = map[Timespan]aggregate{
	TimespanOneMinute:      {1, models.Minute},
	TimespanFiveMinutes:    {5, models.Minute},
	TimespanFifteenMinutes: {15, models.Minute},
	TimespanThirtyMinutes:  {30, models.Minute},
	TimespanOneHour:        {1, models.Hour},
	TimespanOneDay:         {1, models.Day},
	TimespanOneWeek:        {1, models.Week},
}

// ParseTimespan normalizes user input such as " 1D " and falls back to daily
// bars when the value is empty. Unknown intervals are returned unchanged so
// validation can report them.
func ParseTimespan(value string) Timespan {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return TimespanOneDay
	}

	return Timespan(value)
}

// Valid reports whether the interval can be requested from the provider.
func (t Timespan) Valid() bool {
	_, ok := aggregates[t]

	return ok
}

// Multiplier is the number of timespan units per bar. Unknown intervals are daily.
func (t Timespan) Multiplier() int {
	if agg, ok := aggregates[t]; ok {
		return agg.multiplier
	}

	return 1
}

func (t Timespan) Timespan() models.Timespan {
	if agg, ok := aggregates[t]; ok {
		return agg.span
	}

	return models.Day
}
