package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
)

// mapColumns is a minimal Columns implementation for tests.
type mapColumns map[string][]float64

func (m mapColumns) Has(name string) bool            { _, ok := m[name]; return ok }
func (m mapColumns) Column(name string) []float64    { return m[name] }
func (m mapColumns) Set(name string, values []float64) { m[name] = values }

type RegistryTestSuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) TestRegisterDuplicate() {
	r := NewRegistry()
	d := Deriver{
		Name:    "double",
		Inputs:  []string{ColClose},
		Outputs: []string{"double"},
		Compute: func(in [][]float64) [][]float64 { return in },
	}

	suite.NoError(r.Register(d))
	suite.Error(r.Register(d))
	suite.Error(r.Register(Deriver{Name: "empty"}))

	got, err := r.Get("double")
	suite.NoError(err)
	suite.Equal("double", got.Name)

	_, err = r.Get("missing")
	suite.Error(err)
}

func (suite *RegistryTestSuite) TestDefaultRegistryOrder() {
	names := NewDefaultRegistry().List()

	suite.Equal(ColVolumeMA20, names[0])
	suite.Less(indexOf(names, ColVolumeMA20), indexOf(names, ColVolumeSpike))
	suite.Contains(names, ColATR14)
	suite.Contains(names, ColHighestIn5d)
}

func (suite *RegistryTestSuite) TestApplyKeepsPresentColumns() {
	high, low, close, volume := randomWalk(5, 120)
	preset := make([]float64, len(close))

	cols := mapColumns{
		ColHigh: high, ColLow: low, ColClose: close, ColVolume: volume,
		ColRSI14: preset,
	}

	NewDefaultRegistry().Apply(cols)

	suite.Equal(preset, cols[ColRSI14])

	for _, name := range []string{ColVolumeMA20, ColSMA5, ColSMA50, ColSMA200, ColVolumeSpike,
		ColMACD, ColMACDSignal, ColATR14, ColBollUpper, ColBollLower, ColBollWidth, ColMFI14, ColOBV, ColHighestIn5d} {
		suite.True(cols.Has(name), name)
		suite.Len(cols[name], len(close), name)
	}
}

func (suite *RegistryTestSuite) TestApplyWithoutHighLow() {
	_, _, close, volume := randomWalk(9, 60)
	cols := mapColumns{ColClose: close, ColVolume: volume}

	NewDefaultRegistry().Apply(cols)

	suite.False(cols.Has(ColATR14))
	suite.False(cols.Has(ColHighestIn5d))
	suite.True(cols.Has(ColMFI14))

	for _, v := range cols[ColMFI14] {
		suite.True(math.IsNaN(v))
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}

	return -1
}
