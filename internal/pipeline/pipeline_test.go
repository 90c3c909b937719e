package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-signal/internal/indicator"
	"github.com/rxtech-lab/argo-signal/internal/types"
)

type PipelineTestSuite struct {
	suite.Suite
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func rampCandle(i int) types.Candle {
	base := 100 + float64(i)*0.5 + 2*math.Sin(float64(i)/4)
	return types.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Timestamp: int64(i) * 60_000,
		Open:      base,
		High:      base + 1.5,
		Low:       base - 1.5,
		Close:     base + 0.5,
		Volume:    1000 + float64(i%10)*50,
		Confirmed: true,
	}
}

func (suite *PipelineTestSuite) TestDefaultConfigBuilds() {
	p, err := New(DefaultConfig())
	suite.NoError(err)
	suite.NotNil(p)
	// the slowest trend EMA dominates the default lookback
	suite.Equal(676, p.MinLookback())
}

func (suite *PipelineTestSuite) TestAbsentUnitLeavesZeroSlot() {
	p, err := New(Config{
		Rsi: &RsiConfig{Period: 14, Overbought: 70, Oversold: 30},
	})
	suite.NoError(err)

	var snap types.CompositeSignalSnapshot
	for i := 0; i < 30; i++ {
		snap = p.Next(rampCandle(i))
	}

	suite.NotZero(snap.Rsi.Value)
	suite.Zero(snap.Ema)
	suite.Zero(snap.Macd)
	suite.Zero(snap.Atr)
	suite.Zero(snap.Fib)
}

func (suite *PipelineTestSuite) TestSnapshotCarriesTimestamp() {
	p, err := New(Config{Volume: &VolumeConfig{Period: 3}})
	suite.NoError(err)

	snap := p.Next(rampCandle(7))
	suite.Equal(int64(7*60_000), snap.Timestamp)
}

func (suite *PipelineTestSuite) TestAllUnitsPopulate() {
	cfg := DefaultConfig()
	// shrink the slow windows so the test warms up quickly
	cfg.Ema = &EmaConfig{Periods: [5]int{3, 5, 8, 13, 21}}
	cfg.Nwe = &NweConfig{Bandwidth: 8, Multiplier: 3, Window: 20}
	fib := indicator.DefaultFibDetectorConfig()
	fib.SwingLookback = 10
	cfg.Fib = &fib

	p, err := New(cfg)
	suite.NoError(err)

	var snap types.CompositeSignalSnapshot
	for i := 0; i < 120; i++ {
		snap = p.Next(rampCandle(i))
	}

	suite.NotZero(snap.Ema.Ema1)
	suite.NotZero(snap.Rsi.Value)
	suite.NotZero(snap.Bollinger.Middle)
	suite.NotZero(snap.Atr.Value)
	suite.NotZero(snap.Nwe.Mid)
	suite.NotZero(snap.Volume.Ratio)
	suite.NotZero(snap.Fib.SwingHigh)
}

func (suite *PipelineTestSuite) TestCloneIsIndependent() {
	p, err := New(DefaultConfig())
	suite.Require().NoError(err)
	for i := 0; i < 40; i++ {
		p.Next(rampCandle(i))
	}

	clone := p.Clone()

	// advancing the clone leaves the original on its own trajectory
	divergent := rampCandle(40)
	divergent.Close = 1_000_000
	clone.Next(divergent)

	a := p.Next(rampCandle(40))
	b := clone.Next(rampCandle(41))
	suite.NotEqual(a.Ema.Ema1, b.Ema.Ema1)
	suite.NotEqual(a.Macd.Line, b.Macd.Line)

	// a clone advanced on identical input tracks the original exactly
	fresh, err := New(DefaultConfig())
	suite.Require().NoError(err)
	for i := 0; i < 40; i++ {
		fresh.Next(rampCandle(i))
	}
	twin := fresh.Clone()
	suite.Equal(fresh.Next(rampCandle(40)), twin.Next(rampCandle(40)))
}

func (suite *PipelineTestSuite) TestInvalidConfigRejected() {
	_, err := New(Config{Rsi: &RsiConfig{Period: 0, Overbought: 70, Oversold: 30}})
	suite.Error(err)

	_, err = New(Config{Rsi: &RsiConfig{Period: 14, Overbought: 30, Oversold: 70}})
	suite.Error(err)

	_, err = New(Config{Atr: &AtrConfig{Period: 14, StopMultiplier: -1}})
	suite.Error(err)
}

func (suite *PipelineTestSuite) TestDeterministicAcrossRuns() {
	run := func() types.CompositeSignalSnapshot {
		cfg := DefaultConfig()
		cfg.Nwe = &NweConfig{Bandwidth: 8, Multiplier: 3, Window: 30}
		p, err := New(cfg)
		suite.NoError(err)
		var snap types.CompositeSignalSnapshot
		for i := 0; i < 200; i++ {
			snap = p.Next(rampCandle(i))
		}
		return snap
	}

	suite.Equal(run(), run())
}
