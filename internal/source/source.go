// Package source provides candle data acquisition: historical loads from a
// DuckDB store, bulk downloads from Binance and Polygon, and realtime
// websocket streams from Binance and OKX.
package source

import (
	"context"
	"iter"
	"time"

	"github.com/rxtech-lab/argo-signal/internal/types"
)

// OnProgress reports download progress. total may be an estimate.
type OnProgress = func(current float64, total float64, message string)

// HistoricalSource loads previously stored candles for warm-up and backtests.
type HistoricalSource interface {
	// LoadCandles returns candles for symbol/timeframe ordered by timestamp
	// ascending, bounded by [start, end] when non-zero.
	LoadCandles(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]types.Candle, error)
}

// Downloader fetches historical candles from a remote provider and persists
// them through a CandleWriter.
type Downloader interface {
	// Download fetches candles for symbol/timeframe in [start, end] and
	// writes them to the configured writer. Returns the number of candles
	// written.
	Download(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time, onProgress OnProgress) (int, error)
}

// StreamSource yields realtime candles for a set of symbols. The iterator
// yields candle and error pairs; cancel the context to stop streaming.
// Unconfirmed candles are yielded with Confirmed=false and are superseded by
// the confirmed candle carrying the same timestamp.
type StreamSource interface {
	Stream(ctx context.Context, symbols []string, timeframe string) iter.Seq2[types.Candle, error]
}

// CandleWriter persists candles to a destination.
type CandleWriter interface {
	// Initialize sets up the destination, creating tables as needed.
	Initialize() error
	// WriteCandles persists a batch of candles.
	WriteCandles(candles []types.Candle) error
	// Finalize commits pending writes.
	Finalize() error
	// Close releases resources held by the writer.
	Close() error
}
