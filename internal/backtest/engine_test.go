package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/strategy"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

type EngineTestSuite struct {
	suite.Suite
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

// testConfig keeps the warm-up short so replays run over small fixtures.
func testConfig() Config {
	return Config{
		Symbol:       "BTCUSDT",
		InitialFunds: 100,
		Pipeline: pipeline.Config{
			Volume: &pipeline.VolumeConfig{Period: 5},
			Rsi:    &pipeline.RsiConfig{Period: 5, Overbought: 70, Oversold: 30},
			Macd:   &pipeline.MacdConfig{FastPeriod: 3, SlowPeriod: 6, SignalPeriod: 3},
			Atr:    &pipeline.AtrConfig{Period: 5, StopMultiplier: 1.5},
		},
		Strategy:      strategy.DefaultConfig(),
		Risk:          types.DefaultRiskConfig(),
		MinDataLength: 10,
	}
}

// waveCandles produces a deterministic oscillating series.
func waveCandles(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		base := 100 + 10*math.Sin(float64(i)/8) + float64(i)*0.05
		out[i] = types.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1m",
			Timestamp: int64(i) * 60_000,
			Open:      base,
			High:      base + 2,
			Low:       base - 2,
			Close:     base + 1,
			Volume:    1000 + float64((i*37)%500),
			Confirmed: true,
		}
	}
	return out
}

func (suite *EngineTestSuite) TestEmptyInputRejected() {
	engine, err := NewEngine(testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)

	_, err = engine.Run(context.Background(), nil)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientData))
}

func (suite *EngineTestSuite) TestWarmupShorterThanWindowRejected() {
	engine, err := NewEngine(testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)

	_, err = engine.Run(context.Background(), waveCandles(5))
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientData))
}

func (suite *EngineTestSuite) TestReplayProducesResult() {
	engine, err := NewEngine(testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)

	result, err := engine.Run(context.Background(), waveCandles(300))
	suite.Require().NoError(err)
	suite.Equal(100.0, result.InitialFunds)
	suite.Greater(result.FinalFunds, 0.0)
	suite.InDelta(result.FinalFunds-result.InitialFunds, result.TotalProfitLoss, 1e-9)
	suite.GreaterOrEqual(result.WinRate, 0.0)
	suite.LessOrEqual(result.WinRate, 1.0)
}

func (suite *EngineTestSuite) TestDeterministicAcrossRuns() {
	candles := waveCandles(400)

	run := func() *Result {
		engine, err := NewEngine(testConfig(), logger.NewNopLogger())
		suite.Require().NoError(err)
		result, err := engine.Run(context.Background(), candles)
		suite.Require().NoError(err)
		return result
	}

	a := run()
	b := run()

	suite.Equal(a.FinalFunds, b.FinalFunds)
	suite.Equal(a.WinRate, b.WinRate)
	suite.Equal(a.OpenTrades, b.OpenTrades)
	suite.Require().Equal(len(a.TradeRecords), len(b.TradeRecords))
	for i := range a.TradeRecords {
		// record ids are random; everything else must match exactly
		a.TradeRecords[i].ID = ""
		b.TradeRecords[i].ID = ""
		suite.Equal(a.TradeRecords[i], b.TradeRecords[i])
	}
}

func (suite *EngineTestSuite) TestNoOpenPositionAfterFinalize() {
	engine, err := NewEngine(testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)

	result, err := engine.Run(context.Background(), waveCandles(300))
	suite.Require().NoError(err)

	remaining := 0.0
	for _, record := range result.TradeRecords {
		switch record.OptionType {
		case "open":
			remaining = record.Quantity
		case "close":
			remaining = 0
		}
	}
	suite.Zero(remaining)
}

func (suite *EngineTestSuite) TestCancelledContextStopsReplay() {
	engine, err := NewEngine(testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx, waveCandles(300))
	suite.ErrorIs(err, context.Canceled)
}

func (suite *EngineTestSuite) TestInvalidRiskConfigRejected() {
	cfg := testConfig()
	cfg.Risk.MaxLossPercent = -1
	_, err := NewEngine(cfg, nil)
	suite.Error(err)
}

func (suite *EngineTestSuite) TestReportAggregation() {
	engine, err := NewEngine(testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)

	result, err := engine.Run(context.Background(), waveCandles(400))
	suite.Require().NoError(err)

	report := BuildReport(result)
	suite.Equal(result.WinRate, report.WinRate)
	suite.Equal(report.TotalTrades, report.FullCloses+report.PartialCloses)
	suite.GreaterOrEqual(report.GrossProfit.InexactFloat64(), 0.0)
	suite.LessOrEqual(report.GrossLoss.InexactFloat64(), 0.0)

	pnl := PnLSeries(result.TradeRecords)
	suite.Equal(report.FullCloses, len(pnl))
}
