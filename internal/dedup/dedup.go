// Package dedup provides the execution dedup gate: at most one live
// execution is admitted per (key, timestamp) pair while its marker lives.
// The gate is checked before the per-key cache lock so duplicate candle
// events short-circuit without contending for it. The sweep is a liveness
// guard for executions that crashed before completing, not a correctness
// guarantee; a duplicate execution after a sweep is accepted.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultRetention is how long a processing marker survives before the
// sweep reclaims it.
const DefaultRetention = 5 * time.Minute

// Gate admits at most one execution per (key, timestamp) marker.
type Gate interface {
	// TryMarkProcessing atomically claims the marker. It returns false when
	// the marker is already claimed, in which case the caller must skip.
	TryMarkProcessing(ctx context.Context, key string, timestamp int64) (bool, error)
	// MarkCompleted releases the marker after the execution finished.
	MarkCompleted(ctx context.Context, key string, timestamp int64) error
}

func markerKey(key string, timestamp int64) string {
	return fmt.Sprintf("%s_%d", key, timestamp)
}

// MemoryGate is the single-process implementation.
type MemoryGate struct {
	mu        sync.Mutex
	markers   map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryGate returns a gate with the given marker retention; retention
// <= 0 uses DefaultRetention.
func NewMemoryGate(retention time.Duration) *MemoryGate {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryGate{
		markers:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// TryMarkProcessing claims the marker for (key, timestamp).
func (g *MemoryGate) TryMarkProcessing(_ context.Context, key string, timestamp int64) (bool, error) {
	marker := markerKey(key, timestamp)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.markers[marker]; exists {
		return false, nil
	}
	g.markers[marker] = g.now()

	return true, nil
}

// MarkCompleted releases the marker.
func (g *MemoryGate) MarkCompleted(_ context.Context, key string, timestamp int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.markers, markerKey(key, timestamp))

	return nil
}

// SweepExpired drops markers older than the retention window and returns
// how many were reclaimed.
func (g *MemoryGate) SweepExpired() int {
	cutoff := g.now().Add(-g.retention)
	g.mu.Lock()
	defer g.mu.Unlock()
	swept := 0
	for marker, claimed := range g.markers {
		if claimed.Before(cutoff) {
			delete(g.markers, marker)
			swept++
		}
	}

	return swept
}

// Len reports the number of live markers.
func (g *MemoryGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.markers)
}

// RunSweeper sweeps at the given interval until the context is cancelled.
func (g *MemoryGate) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.SweepExpired()
		}
	}
}
