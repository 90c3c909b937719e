package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-signal/internal/cache"
	"github.com/rxtech-lab/argo-signal/internal/dedup"
	"github.com/rxtech-lab/argo-signal/internal/metrics"
	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/strategy"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

type recordingNotifier struct {
	mu      sync.Mutex
	signals []types.SignalResult
	trades  [][]types.TradeRecord
}

func (n *recordingNotifier) NotifySignal(_ context.Context, _ cache.Key, s types.SignalResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, s)
	return nil
}

func (n *recordingNotifier) NotifyTrades(_ context.Context, _ cache.Key, r []types.TradeRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, r)
	return nil
}

type EngineTestSuite struct {
	suite.Suite
	engine   *Engine
	cache    *cache.Cache
	gate     *dedup.MemoryGate
	notifier *recordingNotifier
	key      cache.Key
	ctx      context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) SetupTest() {
	suite.cache = cache.New()
	suite.gate = dedup.NewMemoryGate(0)
	suite.notifier = &recordingNotifier{}
	suite.key = cache.Key{Symbol: "BTCUSDT", Timeframe: "1m", Strategy: types.StrategyTypeVegas}
	suite.ctx = context.Background()

	cfg := Config{
		InitialFunds: 100,
		Pipeline: pipeline.Config{
			Volume: &pipeline.VolumeConfig{Period: 5},
			Macd:   &pipeline.MacdConfig{FastPeriod: 3, SlowPeriod: 6, SignalPeriod: 3},
		},
		Strategy: strategy.DefaultConfig(),
		Risk:     types.DefaultRiskConfig(),
	}
	m := metrics.New(prometheus.NewRegistry())
	engine, err := New(cfg, suite.cache, suite.gate, suite.notifier, m, logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.engine = engine
}

func liveCandle(ts int64, price float64, confirmed bool) types.Candle {
	return types.Candle{
		Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: ts,
		Open: price, High: price + 1, Low: price - 1, Close: price + 0.5,
		Volume: 1000, Confirmed: confirmed,
	}
}

func history(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = liveCandle(int64(i)*60_000, 100+float64(i)*0.1, true)
	}
	return out
}

func (suite *EngineTestSuite) TestUnwarmedKeyIsRetryableNotFound() {
	err := suite.engine.OnCandle(suite.ctx, suite.key, liveCandle(60_000, 100, true))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyNotFound))
}

func (suite *EngineTestSuite) TestWarmThenExecute() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	next := liveCandle(50*60_000, 105, true)
	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, next))

	entry, err := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(err)
	suite.Equal(next.Timestamp, entry.Timestamp)
	last, ok := entry.LastCandle()
	suite.True(ok)
	suite.Equal(next.Timestamp, last.Timestamp)
}

func (suite *EngineTestSuite) TestDuplicateTimestampSkipped() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	next := liveCandle(50*60_000, 105, true)
	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, next))

	entry, _ := suite.cache.Snapshot(suite.key)
	countAfterFirst := len(entry.Candles)

	// marker released after completion; re-claim it to simulate the
	// duplicate arriving while the first is still processing
	ok, err := suite.gate.TryMarkProcessing(suite.ctx, suite.key.String(), next.Timestamp)
	suite.Require().NoError(err)
	suite.Require().True(ok)

	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, next))
	entry, _ = suite.cache.Snapshot(suite.key)
	suite.Equal(countAfterFirst, len(entry.Candles)) // duplicate did nothing
}

func (suite *EngineTestSuite) TestUnconfirmedCandleNeverTrades() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	unconfirmed := liveCandle(50*60_000, 105, false)
	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, unconfirmed))

	entry, err := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(err)
	suite.Len(entry.Candles, 51) // history refreshed
	suite.Empty(entry.State.TradeRecords)
	suite.Empty(suite.notifier.trades)
}

func (suite *EngineTestSuite) TestMarkerReleasedAfterSuccess() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	next := liveCandle(50*60_000, 105, true)
	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, next))

	// same timestamp is claimable again after completion
	ok, err := suite.gate.TryMarkProcessing(suite.ctx, suite.key.String(), next.Timestamp)
	suite.NoError(err)
	suite.True(ok)
}

func (suite *EngineTestSuite) TestMarkerKeptOnFailure() {
	// no warm: execution fails with not-found and the marker must survive
	// for the sweep instead of being released
	next := liveCandle(60_000, 100, true)
	suite.Require().Error(suite.engine.OnCandle(suite.ctx, suite.key, next))

	ok, err := suite.gate.TryMarkProcessing(suite.ctx, suite.key.String(), next.Timestamp)
	suite.NoError(err)
	suite.False(ok)
}

func (suite *EngineTestSuite) TestMalformedCandleRejected() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	bad := liveCandle(50*60_000, 105, true)
	bad.High = bad.Low - 10
	err := suite.engine.OnCandle(suite.ctx, suite.key, bad)
	suite.Error(err)

	// cache untouched: last-consistent state preserved
	entry, snapErr := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(snapErr)
	suite.Len(entry.Candles, 50)
}

func (suite *EngineTestSuite) TestExecuteSwapsEntryInsteadOfMutating() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))
	before, err := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(err)
	fundsBefore := before.State.Funds
	candlesBefore := len(before.Candles)

	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, liveCandle(50*60_000, 105, true)))

	after, err := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(err)
	suite.NotSame(before, after)
	suite.NotSame(before.State, after.State)
	suite.NotSame(before.Pipeline, after.Pipeline)

	// the superseded entry is frozen; readers holding it see no mutation
	suite.Equal(fundsBefore, before.State.Funds)
	suite.Len(before.Candles, candlesBefore)
	suite.Equal(int64(49*60_000), before.Timestamp)
}

func (suite *EngineTestSuite) TestReadersRaceFreeDuringExecution() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	done := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				entry, err := suite.cache.Snapshot(suite.key)
				if err != nil {
					continue
				}
				// touch the fields the trading step writes
				_ = entry.State.Funds
				_ = len(entry.State.TradeRecords)
				for _, c := range entry.Candles {
					_ = c.Close
				}
			}
		}()
	}

	for ts := int64(50); ts < 100; ts++ {
		suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, liveCandle(ts*60_000, 105, true)))
	}
	close(done)
	readers.Wait()

	entry, err := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(err)
	suite.Equal(int64(99*60_000), entry.Timestamp)
}

func (suite *EngineTestSuite) TestIntrabarRefreshesKeepOneSlot() {
	suite.Require().NoError(suite.engine.Warm(suite.key, history(50)))

	for i := 0; i < 30; i++ {
		refresh := liveCandle(50*60_000, 105+float64(i)*0.01, false)
		suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, refresh))
	}
	closed := liveCandle(50*60_000, 105.5, true)
	suite.Require().NoError(suite.engine.OnCandle(suite.ctx, suite.key, closed))

	entry, err := suite.cache.Snapshot(suite.key)
	suite.Require().NoError(err)
	suite.Len(entry.Candles, 51)
	// the refreshes evicted nothing: the oldest warm candle is still there
	suite.Equal(int64(0), entry.Candles[0].Timestamp)
	last, ok := entry.LastCandle()
	suite.True(ok)
	suite.True(last.Confirmed)
	suite.Equal(closed.Close, last.Close)
}

func (suite *EngineTestSuite) TestConcurrentKeysProceedInParallel() {
	keys := make([]cache.Key, 8)
	for i := range keys {
		keys[i] = cache.Key{Symbol: string(rune('A'+i)) + "USDT", Timeframe: "1m", Strategy: types.StrategyTypeVegas}
		suite.Require().NoError(suite.engine.Warm(keys[i], history(50)))
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(k cache.Key) {
			defer wg.Done()
			for ts := int64(50); ts < 60; ts++ {
				_ = suite.engine.OnCandle(suite.ctx, k, liveCandle(ts*60_000, 105, true))
			}
		}(key)
	}
	wg.Wait()

	for _, key := range keys {
		entry, err := suite.cache.Snapshot(key)
		suite.Require().NoError(err)
		suite.Len(entry.Candles, 60)
	}
}
