// Package cache holds the per-key live execution state: the rolling candle
// history plus the indicator pipeline and trading state advanced from it.
// Reads are lock-free single map fetches; mutations go through the per-key
// mutex arena and replace the whole entry at once, so readers never observe
// a half-updated entry.
package cache

import (
	"fmt"
	"sync"

	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// MaxCandleHistory caps the candle history kept per key; older candles are
// evicted FIFO.
const MaxCandleHistory = 100

// Key identifies one live execution stream.
type Key struct {
	Symbol    string
	Timeframe string
	Strategy  types.StrategyType
}

// String renders the key in its canonical map form.
func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Symbol, k.Timeframe, k.Strategy)
}

// Entry is the immutable-once-stored value for one key. UpdateBoth swaps
// the whole entry, never its fields.
type Entry struct {
	Candles   []types.Candle
	Pipeline  *pipeline.Pipeline
	State     *types.TradingState
	Timestamp int64
}

// LastCandle returns the newest candle, or false when history is empty.
func (e *Entry) LastCandle() (types.Candle, bool) {
	if len(e.Candles) == 0 {
		return types.Candle{}, false
	}
	return e.Candles[len(e.Candles)-1], true
}

// Cache is the process-wide store, constructed once at startup and passed
// by reference to the components that need it.
type Cache struct {
	entries sync.Map // string -> *Entry
	locks   sync.Map // string -> *sync.Mutex
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Lock returns the dedicated mutex for key, creating it race-safely on
// first use. Callers hold it across a whole read-modify-write sequence.
func (c *Cache) Lock(key Key) *sync.Mutex {
	actual, _ := c.locks.LoadOrStore(key.String(), &sync.Mutex{})

	return actual.(*sync.Mutex)
}

// Snapshot returns the current entry for key without locking. A concurrent
// UpdateBoth may race with it; the read still observes either the old or
// the new entry, never a mix.
func (c *Cache) Snapshot(key Key) (*Entry, error) {
	value, ok := c.entries.Load(key.String())
	if !ok {
		return nil, errors.Newf(errors.ErrCodeCacheKeyNotFound, "no cache entry for key %q", key.String())
	}

	return value.(*Entry), nil
}

// LastN returns up to n of the newest cached candles for key, newest last.
// The returned slice is a copy; callers may keep it.
func (c *Cache) LastN(key Key, n int) ([]types.Candle, error) {
	entry, err := c.Snapshot(key)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(entry.Candles) == 0 {
		return []types.Candle{}, nil
	}
	if n > len(entry.Candles) {
		n = len(entry.Candles)
	}
	out := make([]types.Candle, n)
	copy(out, entry.Candles[len(entry.Candles)-n:])

	return out, nil
}

// UpdateBoth is the sole mutating entry point: it replaces the candle
// history and the derived state together under a single atomic store. The
// candle history is trimmed to MaxCandleHistory, oldest first.
func (c *Cache) UpdateBoth(key Key, candles []types.Candle, p *pipeline.Pipeline, state *types.TradingState, timestamp int64) {
	if len(candles) > MaxCandleHistory {
		candles = candles[len(candles)-MaxCandleHistory:]
	}
	kept := make([]types.Candle, len(candles))
	copy(kept, candles)

	c.entries.Store(key.String(), &Entry{
		Candles:   kept,
		Pipeline:  p,
		State:     state,
		Timestamp: timestamp,
	})
}

// WithCandle returns a copy of history with candle appended, or with the
// tail replaced when it carries the same timestamp. A bar therefore holds
// one history slot no matter how many intrabar refreshes precede its close.
func WithCandle(history []types.Candle, candle types.Candle) []types.Candle {
	if n := len(history); n > 0 && history[n-1].Timestamp == candle.Timestamp {
		out := make([]types.Candle, n)
		copy(out, history)
		out[n-1] = candle
		return out
	}

	return append(append(make([]types.Candle, 0, len(history)+1), history...), candle)
}

// Append adds one candle to the key's history under the entry-swap
// contract, reusing the existing pipeline and state references. Same-bar
// refreshes overwrite the tail instead of growing the history.
func (c *Cache) Append(key Key, candle types.Candle) error {
	entry, err := c.Snapshot(key)
	if err != nil {
		return err
	}
	c.UpdateBoth(key, WithCandle(entry.Candles, candle), entry.Pipeline, entry.State, candle.Timestamp)

	return nil
}

// Delete removes the entry and its lock.
func (c *Cache) Delete(key Key) {
	c.entries.Delete(key.String())
	c.locks.Delete(key.String())
}

// ForEach visits every cached entry. The entry pointer is the atomic
// snapshot current at visit time; a concurrent UpdateBoth is not observed
// mid-visit.
func (c *Cache) ForEach(fn func(key string, entry *Entry)) {
	c.entries.Range(func(k, v any) bool {
		fn(k.(string), v.(*Entry))
		return true
	})
}

// Keys returns the canonical form of every cached key.
func (c *Cache) Keys() []string {
	var keys []string
	c.entries.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})

	return keys
}
