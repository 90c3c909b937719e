// Package metrics exposes the live engine's Prometheus instrumentation.
// One Metrics value is constructed at process start and shared by
// reference; registration happens once against the provided registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine updates.
type Metrics struct {
	CandlesTotal    *prometheus.CounterVec
	SignalsTotal    *prometheus.CounterVec
	TradesOpened    *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec
	DedupSkips      *prometheus.CounterVec
	ExecutionErrors *prometheus.CounterVec
	OpenPositions   *prometheus.GaugeVec
	ExecutionDur    prometheus.Histogram
	CacheEntries    prometheus.Gauge
}

// New builds the collector set and registers it. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argosignal_candles_total",
			Help: "Candle events accepted per execution key",
		}, []string{"key"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argosignal_signals_total",
			Help: "Directional signals generated (by side)",
		}, []string{"key", "side"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argosignal_trades_opened_total",
			Help: "Positions opened",
		}, []string{"key"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argosignal_trades_closed_total",
			Help: "Close and partial-close ledger records written",
		}, []string{"key", "close_type"}),
		DedupSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argosignal_dedup_skips_total",
			Help: "Candle events short-circuited by the dedup gate",
		}, []string{"key"}),
		ExecutionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argosignal_execution_errors_total",
			Help: "Live executions that ended in an error",
		}, []string{"key"}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "argosignal_open_positions",
			Help: "Whether a position is open per execution key (0/1)",
		}, []string{"key"}),
		ExecutionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "argosignal_execution_duration_seconds",
			Help:    "Live execution latency per candle (pipeline through cache write)",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "argosignal_cache_entries",
			Help: "Execution keys currently held in the cache",
		}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.SignalsTotal,
		m.TradesOpened,
		m.TradesClosed,
		m.DedupSkips,
		m.ExecutionErrors,
		m.OpenPositions,
		m.ExecutionDur,
		m.CacheEntries,
	)

	return m
}
