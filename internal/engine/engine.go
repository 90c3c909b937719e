// Package engine orchestrates the live execution path. Each incoming candle
// event runs: dedup gate -> per-key cache lock -> pipeline advance -> signal
// generation -> trading state machine -> atomic cache write -> gate release
// -> downstream notification. Executions for different keys run fully in
// parallel; the per-key mutex serializes same-key mutations, and the dedup
// gate short-circuits duplicates before the lock is even contended.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-signal/internal/cache"
	"github.com/rxtech-lab/argo-signal/internal/dedup"
	"github.com/rxtech-lab/argo-signal/internal/metrics"
	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/strategy"
	"github.com/rxtech-lab/argo-signal/internal/trading"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

// OrderNotifier receives trade events after the core has committed its
// state. Submission to an exchange and persistence are the collaborator's
// problem; the engine never waits on them inside the locked section.
type OrderNotifier interface {
	NotifySignal(ctx context.Context, key cache.Key, signal types.SignalResult) error
	NotifyTrades(ctx context.Context, key cache.Key, records []types.TradeRecord) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifySignal(context.Context, cache.Key, types.SignalResult) error { return nil }
func (NopNotifier) NotifyTrades(context.Context, cache.Key, []types.TradeRecord) error {
	return nil
}

// Config assembles one live engine.
type Config struct {
	InitialFunds float64          `yaml:"initial_funds" json:"initial_funds"`
	Pipeline     pipeline.Config  `yaml:"pipeline" json:"pipeline"`
	Strategy     strategy.Config  `yaml:"strategy" json:"strategy"`
	Risk         types.RiskConfig `yaml:"risk" json:"risk"`
}

// Engine executes candle events against the shared cache.
type Engine struct {
	cfg      Config
	cache    *cache.Cache
	gate     dedup.Gate
	notifier OrderNotifier
	metrics  *metrics.Metrics
	gen      *strategy.Generator
	logger   *logger.Logger
}

// New validates the configuration and wires the engine. The cache and gate
// are injected so one instance of each can serve every component.
func New(cfg Config, c *cache.Cache, gate dedup.Gate, notifier OrderNotifier, m *metrics.Metrics, log *logger.Logger) (*Engine, error) {
	if c == nil || gate == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "cache and dedup gate are required")
	}
	if cfg.InitialFunds <= 0 {
		cfg.InitialFunds = 100
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	gen, err := strategy.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{
		cfg:      cfg,
		cache:    c,
		gate:     gate,
		notifier: notifier,
		metrics:  m,
		gen:      gen,
		logger:   log,
	}, nil
}

// Warm seeds the cache entry for key from historical candles so live
// execution starts with converged indicators.
func (e *Engine) Warm(key cache.Key, history []types.Candle) error {
	pipe, err := pipeline.New(e.cfg.Pipeline)
	if err != nil {
		return err
	}
	for _, candle := range history {
		pipe.Next(candle)
	}
	state := types.NewTradingState(e.cfg.InitialFunds)
	ts := int64(0)
	if len(history) > 0 {
		ts = history[len(history)-1].Timestamp
	}
	e.cache.UpdateBoth(key, history, pipe, state, ts)
	if e.metrics != nil {
		e.metrics.CacheEntries.Set(float64(len(e.cache.Keys())))
	}
	e.logger.Info("cache warmed",
		zap.String("key", key.String()),
		zap.Int("candles", len(history)),
	)

	return nil
}

// OnCandle processes one candle event for key. Unconfirmed candles never
// reach the state machine; they only refresh the cached history. A "not
// found" from the cache is retryable: the caller should warm the key first.
func (e *Engine) OnCandle(ctx context.Context, key cache.Key, candle types.Candle) error {
	if !candle.Confirmed {
		return e.updateUnconfirmed(key, candle)
	}

	admitted, err := e.gate.TryMarkProcessing(ctx, key.String(), candle.Timestamp)
	if err != nil {
		return err
	}
	if !admitted {
		if e.metrics != nil {
			e.metrics.DedupSkips.WithLabelValues(key.String()).Inc()
		}
		return nil
	}

	execErr := e.execute(ctx, key, candle)
	if execErr != nil {
		if e.metrics != nil {
			e.metrics.ExecutionErrors.WithLabelValues(key.String()).Inc()
		}
		// keep the marker; the sweep reclaims it so a stuck key heals
		return execErr
	}

	return e.gate.MarkCompleted(ctx, key.String(), candle.Timestamp)
}

func (e *Engine) execute(ctx context.Context, key cache.Key, candle types.Candle) error {
	started := time.Now()

	mu := e.cache.Lock(key)
	mu.Lock()
	defer mu.Unlock()

	entry, err := e.cache.Snapshot(key)
	if err != nil {
		return err
	}
	if err := candle.Validate(); err != nil {
		return err
	}

	// stage everything on clones: the published entry stays untouched for
	// lock-free readers, and a failed step discards the staged work so the
	// previous entry stays observable
	pipe := entry.Pipeline.Clone()
	snapshot := pipe.Next(candle)
	candles := cache.WithCandle(entry.Candles, candle)

	signal := e.gen.Generate(candles, &snapshot)

	state := entry.State.Clone()
	machine, err := trading.NewStateMachine(e.cfg.Risk, key.Symbol, state)
	if err != nil {
		return err
	}
	recordsBefore := len(state.TradeRecords)
	if err := machine.Step(candle, signal); err != nil {
		return err
	}

	// the single atomic mutation
	e.cache.UpdateBoth(key, candles, pipe, state, candle.Timestamp)

	e.observe(key, signal, state, recordsBefore, started)
	e.notify(ctx, key, signal, state.TradeRecords[recordsBefore:])

	return nil
}

func (e *Engine) updateUnconfirmed(key cache.Key, candle types.Candle) error {
	mu := e.cache.Lock(key)
	mu.Lock()
	defer mu.Unlock()

	return e.cache.Append(key, candle)
}

func (e *Engine) observe(key cache.Key, signal types.SignalResult, state *types.TradingState, recordsBefore int, started time.Time) {
	if e.metrics == nil {
		return
	}
	keyLabel := key.String()
	e.metrics.CandlesTotal.WithLabelValues(keyLabel).Inc()
	e.metrics.ExecutionDur.Observe(time.Since(started).Seconds())

	if signal.HasDirection() {
		e.metrics.SignalsTotal.WithLabelValues(keyLabel, string(signal.Side())).Inc()
	}
	for _, record := range state.TradeRecords[recordsBefore:] {
		switch record.OptionType {
		case "open":
			e.metrics.TradesOpened.WithLabelValues(keyLabel).Inc()
		default:
			e.metrics.TradesClosed.WithLabelValues(keyLabel, record.CloseType).Inc()
		}
	}
	open := 0.0
	if state.Position != nil {
		open = 1
	}
	e.metrics.OpenPositions.WithLabelValues(keyLabel).Set(open)
}

func (e *Engine) notify(ctx context.Context, key cache.Key, signal types.SignalResult, newRecords []types.TradeRecord) {
	if signal.HasDirection() {
		if err := e.notifier.NotifySignal(ctx, key, signal); err != nil {
			e.logger.Warn("signal notification failed",
				zap.String("key", key.String()),
				zap.Error(err),
			)
		}
	}
	if len(newRecords) > 0 {
		if err := e.notifier.NotifyTrades(ctx, key, newRecords); err != nil {
			e.logger.Warn("trade notification failed",
				zap.String("key", key.String()),
				zap.Error(err),
			)
		}
	}
}
