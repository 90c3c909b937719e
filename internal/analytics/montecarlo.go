// Package analytics estimates the risk profile of a trading strategy by
// Monte Carlo resampling of a backtest's per-trade P&L sequence.
package analytics

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// PessimisticLossMultiplier scales losing trades when estimating the
// intra-trade floating loss for drawdown purposes. Tuning constant carried
// from production; no deeper meaning.
const PessimisticLossMultiplier = 1.5

// Config controls one simulation batch.
type Config struct {
	// Iterations is the number of shuffled replays.
	Iterations int `yaml:"iterations" json:"iterations"`
	// InitialCapital seeds each equity curve.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	// Rand supplies the shuffle source; nil falls back to a time-seeded
	// source. Inject a fixed seed for reproducible runs.
	Rand *rand.Rand `yaml:"-" json:"-"`
}

// SimulationResult is the outcome of one shuffled replay.
type SimulationResult struct {
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalProfit  float64 `json:"total_profit"`
	FinalCapital float64 `json:"final_capital"`
	WinRate      float64 `json:"win_rate"`
}

// Stats aggregates one metric across all iterations. Percentiles are the
// sorted-array element at index floor(len*p), not interpolated.
type Stats struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
	P05  float64 `json:"p05"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
}

// Report is the full simulation output.
type Report struct {
	Iterations       int                `json:"iterations"`
	TradeCount       int                `json:"trade_count"`
	MaxDrawdownStats Stats              `json:"max_drawdown_stats"`
	ProfitStats      Stats              `json:"profit_stats"`
	Simulations      []SimulationResult `json:"simulations"`
}

// Analyzer resamples P&L sequences.
type Analyzer struct {
	cfg Config
	rng *rand.Rand
}

// NewAnalyzer validates the config and returns an analyzer.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Iterations <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "iterations must be positive, got %d", cfg.Iterations)
	}
	if cfg.InitialCapital <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "initial capital must be positive, got %f", cfg.InitialCapital)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	return &Analyzer{cfg: cfg, rng: rng}, nil
}

// Analyze shuffles the P&L sequence Iterations times, replays a simplified
// equity curve per shuffle, and aggregates drawdown and profit statistics.
func (a *Analyzer) Analyze(pnls []float64) (*Report, error) {
	if len(pnls) == 0 {
		return nil, errors.New(errors.ErrCodeInsufficientData, "empty P&L series")
	}

	shuffled := append([]float64(nil), pnls...)
	simulations := make([]SimulationResult, 0, a.cfg.Iterations)
	for i := 0; i < a.cfg.Iterations; i++ {
		a.rng.Shuffle(len(shuffled), func(x, y int) {
			shuffled[x], shuffled[y] = shuffled[y], shuffled[x]
		})
		simulations = append(simulations, a.replayEquity(shuffled))
	}

	drawdowns := make([]float64, len(simulations))
	profits := make([]float64, len(simulations))
	for i, sim := range simulations {
		drawdowns[i] = sim.MaxDrawdown
		profits[i] = sim.TotalProfit
	}

	return &Report{
		Iterations:       a.cfg.Iterations,
		TradeCount:       len(pnls),
		MaxDrawdownStats: computeStats(drawdowns),
		ProfitStats:      computeStats(profits),
		Simulations:      simulations,
	}, nil
}

// replayEquity applies the P&L sequence to a running equity curve. Losing
// trades assume an estimated intrabar floor at PessimisticLossMultiplier
// times the realized loss before the actual P&L lands.
func (a *Analyzer) replayEquity(pnls []float64) SimulationResult {
	capital := a.cfg.InitialCapital
	peak := capital
	maxDrawdown := 0.0
	totalProfit := 0.0
	wins := 0

	for _, pnl := range pnls {
		if pnl < 0 {
			worst := capital + pnl*PessimisticLossMultiplier
			if worst < 0 {
				worst = 0
			}
			if worst < peak && peak > 0 {
				if dd := (peak - worst) / peak; dd > maxDrawdown {
					maxDrawdown = dd
				}
			}
		}

		capital += pnl
		totalProfit += pnl
		if pnl > 0 {
			wins++
		}

		if capital > peak {
			peak = capital
		}
		if peak > 0 {
			if dd := (peak - capital) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return SimulationResult{
		MaxDrawdown:  maxDrawdown,
		TotalProfit:  totalProfit,
		FinalCapital: capital,
		WinRate:      float64(wins) / float64(len(pnls)),
	}
}

func computeStats(values []float64) Stats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return Stats{}
	}
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Stats{
		Min:  sorted[0],
		Mean: sum / float64(n),
		Max:  sorted[n-1],
		P05:  sorted[percentileIndex(n, 0.05)],
		P50:  sorted[percentileIndex(n, 0.50)],
		P95:  sorted[percentileIndex(n, 0.95)],
	}
}

// percentileIndex is floor(len*p), clamped to the last element.
func percentileIndex(n int, p float64) int {
	idx := int(float64(n) * p)
	if idx >= n {
		idx = n - 1
	}

	return idx
}

// String renders the report the way operators read it: drawdown first.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monte Carlo simulation (%d iterations, %d trades)\n", r.Iterations, r.TradeCount)
	fmt.Fprintf(&b, "Max drawdown: p95=%.2f%% p50=%.2f%% p05=%.2f%% mean=%.2f%% max=%.2f%%\n",
		r.MaxDrawdownStats.P95*100, r.MaxDrawdownStats.P50*100, r.MaxDrawdownStats.P05*100,
		r.MaxDrawdownStats.Mean*100, r.MaxDrawdownStats.Max*100)
	fmt.Fprintf(&b, "Total profit: p05=%.2f p50=%.2f p95=%.2f mean=%.2f min=%.2f max=%.2f\n",
		r.ProfitStats.P05, r.ProfitStats.P50, r.ProfitStats.P95,
		r.ProfitStats.Mean, r.ProfitStats.Min, r.ProfitStats.Max)

	return b.String()
}
