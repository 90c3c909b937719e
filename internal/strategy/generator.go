// Package strategy turns a composite indicator snapshot into a trading
// decision. The generator is a pure function of the candle window and the
// snapshot: it never touches the clock, randomness, or shared state, so the
// backtest and live paths produce identical signals from identical input.
package strategy

import (
	"fmt"
	"strings"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// VoteType identifies one condition contributing to the weighted score.
type VoteType string

const (
	VoteVolume      VoteType = "volume"
	VoteTunnelCross VoteType = "tunnel_cross"
	VoteTrend       VoteType = "trend"
	VoteRsi         VoteType = "rsi"
	VoteBollinger   VoteType = "bollinger"
	VoteMacd        VoteType = "macd"
	VotePattern     VoteType = "pattern"
	VoteFib         VoteType = "fib"
	VoteNwe         VoteType = "nwe"
)

type direction int

const (
	directionNone direction = iota
	directionLong
	directionShort
)

// vote is one evaluated condition: its contribution to the total score and,
// when directional, which side it argues for.
type vote struct {
	Type      VoteType
	Score     float64
	Direction direction
	Detail    string
}

// Config tunes the vote weights and the entry heuristics.
type Config struct {
	// Weights maps each condition to its score contribution; a missing
	// entry weighs zero, disabling the condition.
	Weights map[VoteType]float64 `yaml:"weights" json:"weights"`

	// MinScore is the total weighted score required before a directional
	// signal is emitted.
	MinScore float64 `yaml:"min_score" json:"min_score" validate:"gt=0"`

	// VolumeGateRatio vetoes any entry when the volume ratio is known and
	// below this floor. 0 disables the gate.
	VolumeGateRatio float64 `yaml:"volume_gate_ratio" json:"volume_gate_ratio" validate:"gte=0"`

	// PatternVolumeRatio is the volume confirmation an engulfing candle
	// needs before its open is trusted as a stop price.
	PatternVolumeRatio float64 `yaml:"pattern_volume_ratio" json:"pattern_volume_ratio" validate:"gte=0"`

	// MinPatternAmplitude (percent of open) is the minimum candle amplitude
	// for a hammer / shooting star to count as a vote.
	MinPatternAmplitude float64 `yaml:"min_pattern_amplitude" json:"min_pattern_amplitude" validate:"gte=0"`

	// BollingerTouchCount is the consecutive band-touch count that turns a
	// band touch into a mean-reversion vote.
	BollingerTouchCount int `yaml:"bollinger_touch_count" json:"bollinger_touch_count" validate:"gt=0"`

	// EntryAmplitudeFloor (percent of open) is the minimum candle amplitude
	// before an optimal entry price is suggested instead of an immediate
	// fill at the close.
	EntryAmplitudeFloor float64 `yaml:"entry_amplitude_floor" json:"entry_amplitude_floor" validate:"gte=0"`

	// EntryFraction is the fraction of the candle's high-low range retraced
	// from the extreme to form the optimal entry price.
	EntryFraction float64 `yaml:"entry_fraction" json:"entry_fraction" validate:"gt=0,lt=1"`

	// TakeProfitAmplitudeMult projects the fixed target as a multiple of
	// the close-to-low distance of the signal candle. 0 disables it.
	TakeProfitAmplitudeMult float64 `yaml:"take_profit_amplitude_mult" json:"take_profit_amplitude_mult" validate:"gte=0"`
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		Weights: map[VoteType]float64{
			VoteVolume:      1.0,
			VoteTunnelCross: 1.0,
			VoteTrend:       1.0,
			VoteRsi:         1.0,
			VoteBollinger:   1.0,
			VoteMacd:        1.0,
			VotePattern:     1.0,
			VoteFib:         2.0,
			VoteNwe:         1.0,
		},
		MinScore:                2.0,
		VolumeGateRatio:         0.5,
		PatternVolumeRatio:      1.5,
		MinPatternAmplitude:     0.6,
		BollingerTouchCount:     2,
		EntryAmplitudeFloor:     1.2,
		EntryFraction:           0.382,
		TakeProfitAmplitudeMult: 0,
	}
}

// ConfigForType returns the generator tuning for one strategy kind. The
// vegas tuning is the balanced default. The nwe tuning weighs envelope and
// band reversion up and trend-following down. The fibonacci tuning makes
// the retracement vote dominant and raises the entry bar so a retracement
// hit plus one confirmation is required.
func ConfigForType(t types.StrategyType) (Config, error) {
	cfg := DefaultConfig()
	switch t {
	case types.StrategyTypeVegas:
	case types.StrategyTypeNwe:
		cfg.Weights[VoteNwe] = 2.0
		cfg.Weights[VoteBollinger] = 1.5
		cfg.Weights[VoteTunnelCross] = 0.5
		cfg.Weights[VoteTrend] = 0.5
		cfg.Weights[VoteFib] = 1.0
	case types.StrategyTypeFibonacci:
		cfg.Weights[VoteFib] = 3.0
		cfg.Weights[VoteNwe] = 0.5
		cfg.MinScore = 3.5
	default:
		return Config{}, errors.Newf(errors.ErrCodeUnsupportedStrategy, "unsupported strategy type: %q", t)
	}
	return cfg, nil
}

// Generator scores indicator snapshots into signals.
type Generator struct {
	cfg Config
}

// New validates the configuration and returns a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.MinScore <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "min score must be positive, got %f", cfg.MinScore)
	}
	if cfg.EntryFraction <= 0 || cfg.EntryFraction >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "entry fraction %f out of (0,1)", cfg.EntryFraction)
	}
	if cfg.VolumeGateRatio < 0 || cfg.PatternVolumeRatio < 0 || cfg.MinPatternAmplitude < 0 ||
		cfg.EntryAmplitudeFloor < 0 || cfg.TakeProfitAmplitudeMult < 0 {
		return nil, errors.New(errors.ErrCodeInvalidThreshold, "thresholds must be non-negative")
	}
	if cfg.BollingerTouchCount <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "bollinger touch count must be positive, got %d", cfg.BollingerTouchCount)
	}
	if cfg.Weights == nil {
		cfg.Weights = map[VoteType]float64{}
	}
	return &Generator{cfg: cfg}, nil
}

func (g *Generator) weight(t VoteType) float64 {
	return g.cfg.Weights[t]
}

// Generate scores the snapshot for the latest candle of window and returns
// the decision. An empty window yields an empty, non-directional result.
func (g *Generator) Generate(window []types.Candle, snap *types.CompositeSignalSnapshot) types.SignalResult {
	if len(window) == 0 || snap == nil {
		return types.SignalResult{}
	}
	last := window[len(window)-1]
	result := types.SignalResult{
		Timestamp: last.Timestamp,
		OpenPrice: last.Close,
	}

	var reasons []string

	// Hard volume veto runs before any scoring.
	if g.cfg.VolumeGateRatio > 0 && snap.Volume.Ratio > 0 && snap.Volume.Ratio < g.cfg.VolumeGateRatio {
		result.FilterReasons = []string{fmt.Sprintf("volume_ratio_below_gate(%.3f<%.3f)", snap.Volume.Ratio, g.cfg.VolumeGateRatio)}
		result.SnapshotJSON = snap.JSON()
		return result
	}

	votes := g.collectVotes(last, snap)

	var total float64
	longs, shorts := 0, 0
	trace := make([]string, 0, len(votes))
	for _, v := range votes {
		total += v.Score
		switch v.Direction {
		case directionLong:
			longs++
		case directionShort:
			shorts++
		}
		trace = append(trace, v.Detail)
	}

	dir := directionNone
	switch {
	case longs > shorts:
		dir = directionLong
	case shorts > longs:
		dir = directionShort
	}
	if dir != directionNone && total < g.cfg.MinScore {
		reasons = append(reasons, fmt.Sprintf("score_below_threshold(%.2f<%.2f)", total, g.cfg.MinScore))
		dir = directionNone
	}

	// RSI extremes veto entries in the exhausted direction.
	if dir == directionLong && snap.Rsi.Overbought {
		reasons = append(reasons, "rsi_overbought_blocks_long")
		dir = directionNone
	}
	if dir == directionShort && snap.Rsi.Oversold {
		reasons = append(reasons, "rsi_oversold_blocks_short")
		dir = directionNone
	}

	result.ShouldBuy = dir == directionLong
	result.ShouldSell = dir == directionShort
	result.DecisionTrace = strings.Join(trace, ";")
	result.FilterReasons = reasons
	result.SnapshotJSON = snap.JSON()

	if dir == directionNone {
		return result
	}

	side := result.Side()
	result.BestOpenPrice = g.bestOpenPrice(last, side)
	result.KlineStopLoss, result.StopLossSource = g.stopLoss(last, snap, side)
	result.AtrStopLoss = atrStop(snap, side)
	result.TakeProfit = g.takeProfit(last, side)
	return result
}

// collectVotes evaluates every weighted condition against the snapshot.
func (g *Generator) collectVotes(last types.Candle, snap *types.CompositeSignalSnapshot) []vote {
	votes := make([]vote, 0, 8)

	if snap.Volume.Increasing {
		score := g.weight(VoteVolume) * minF(snap.Volume.Ratio/2, 1)
		votes = append(votes, vote{VoteVolume, score, directionNone,
			fmt.Sprintf("volume:+%.2f(ratio=%.2f)", score, snap.Volume.Ratio)})
	}

	if snap.Ema.CrossedUp {
		votes = append(votes, vote{VoteTunnelCross, g.weight(VoteTunnelCross), directionLong,
			fmt.Sprintf("tunnel_cross:+%.2f(long)", g.weight(VoteTunnelCross))})
	} else if snap.Ema.CrossedDown {
		votes = append(votes, vote{VoteTunnelCross, g.weight(VoteTunnelCross), directionShort,
			fmt.Sprintf("tunnel_cross:+%.2f(short)", g.weight(VoteTunnelCross))})
	}

	if snap.Ema.LongTrend {
		votes = append(votes, vote{VoteTrend, g.weight(VoteTrend), directionLong,
			fmt.Sprintf("trend:+%.2f(long)", g.weight(VoteTrend))})
	} else if snap.Ema.ShortTrend {
		votes = append(votes, vote{VoteTrend, g.weight(VoteTrend), directionShort,
			fmt.Sprintf("trend:+%.2f(short)", g.weight(VoteTrend))})
	}

	if snap.Rsi.Oversold {
		votes = append(votes, vote{VoteRsi, g.weight(VoteRsi), directionLong,
			fmt.Sprintf("rsi:+%.2f(oversold=%.1f)", g.weight(VoteRsi), snap.Rsi.Value)})
	} else if snap.Rsi.Overbought {
		votes = append(votes, vote{VoteRsi, g.weight(VoteRsi), directionShort,
			fmt.Sprintf("rsi:+%.2f(overbought=%.1f)", g.weight(VoteRsi), snap.Rsi.Value)})
	}

	// Repeated band touches argue for mean reversion back toward the middle.
	if snap.Bollinger.LowerTouches >= g.cfg.BollingerTouchCount {
		votes = append(votes, vote{VoteBollinger, g.weight(VoteBollinger), directionLong,
			fmt.Sprintf("bollinger:+%.2f(lower_touches=%d)", g.weight(VoteBollinger), snap.Bollinger.LowerTouches)})
	} else if snap.Bollinger.UpperTouches >= g.cfg.BollingerTouchCount {
		votes = append(votes, vote{VoteBollinger, g.weight(VoteBollinger), directionShort,
			fmt.Sprintf("bollinger:+%.2f(upper_touches=%d)", g.weight(VoteBollinger), snap.Bollinger.UpperTouches)})
	}

	if snap.Macd.Histogram > 0 {
		votes = append(votes, vote{VoteMacd, g.weight(VoteMacd), directionLong,
			fmt.Sprintf("macd:+%.2f(hist=%.4f)", g.weight(VoteMacd), snap.Macd.Histogram)})
	} else if snap.Macd.Histogram < 0 {
		votes = append(votes, vote{VoteMacd, g.weight(VoteMacd), directionShort,
			fmt.Sprintf("macd:+%.2f(hist=%.4f)", g.weight(VoteMacd), snap.Macd.Histogram)})
	}

	if v, ok := g.patternVote(last, snap); ok {
		votes = append(votes, v)
	}

	// Envelope touches argue for reversion toward the centerline. A zero
	// envelope means the unit is still warming up.
	if snap.Nwe.Upper > snap.Nwe.Lower {
		if last.Close <= snap.Nwe.Lower {
			votes = append(votes, vote{VoteNwe, g.weight(VoteNwe), directionLong,
				fmt.Sprintf("nwe:+%.2f(close=%.4f<=lower=%.4f)", g.weight(VoteNwe), last.Close, snap.Nwe.Lower)})
		} else if last.Close >= snap.Nwe.Upper {
			votes = append(votes, vote{VoteNwe, g.weight(VoteNwe), directionShort,
				fmt.Sprintf("nwe:+%.2f(close=%.4f>=upper=%.4f)", g.weight(VoteNwe), last.Close, snap.Nwe.Upper)})
		}
	}

	if snap.Fib.LongSignal {
		votes = append(votes, vote{VoteFib, g.weight(VoteFib), directionLong,
			fmt.Sprintf("fib:+%.2f(long,ratio=%.3f)", g.weight(VoteFib), snap.Fib.Ratio)})
	} else if snap.Fib.ShortSignal {
		votes = append(votes, vote{VoteFib, g.weight(VoteFib), directionShort,
			fmt.Sprintf("fib:+%.2f(short,ratio=%.3f)", g.weight(VoteFib), snap.Fib.Ratio)})
	}

	return votes
}

func (g *Generator) patternVote(last types.Candle, snap *types.CompositeSignalSnapshot) (vote, bool) {
	w := g.weight(VotePattern)
	if snap.Pattern.IsEngulfing {
		dir := directionShort
		label := "bearish"
		if snap.Pattern.EngulfingBullish {
			dir = directionLong
			label = "bullish"
		}
		return vote{VotePattern, w, dir,
			fmt.Sprintf("pattern:+%.2f(engulfing_%s,body=%.2f)", w, label, snap.Pattern.EngulfingBodyRatio)}, true
	}
	// Hammers on a tiny candle carry no information.
	if last.Amplitude() < g.cfg.MinPatternAmplitude {
		return vote{}, false
	}
	if snap.Pattern.IsHammer {
		return vote{VotePattern, w, directionLong,
			fmt.Sprintf("pattern:+%.2f(hammer,lower=%.2f)", w, snap.Pattern.LowerShadowRatio)}, true
	}
	if snap.Pattern.IsShootingStar {
		return vote{VotePattern, w, directionShort,
			fmt.Sprintf("pattern:+%.2f(shooting_star,upper=%.2f)", w, snap.Pattern.UpperShadowRatio)}, true
	}
	return vote{}, false
}

// bestOpenPrice retraces EntryFraction of the signal candle's range from its
// extreme. Suggested only when the candle amplitude clears the floor, since
// a narrow bar leaves no room for a better fill.
func (g *Generator) bestOpenPrice(last types.Candle, side types.TradeSide) optional.Option[float64] {
	if last.Amplitude() <= g.cfg.EntryAmplitudeFloor {
		return optional.None[float64]()
	}
	diff := last.High - last.Low
	if side == types.TradeSideLong {
		return optional.Some(last.High - diff*g.cfg.EntryFraction)
	}
	return optional.Some(last.Low + diff*g.cfg.EntryFraction)
}

// stopLoss selects the signal-candle stop price: a confirmed engulfing open,
// a hammer extreme, a retracement swing extreme, or the plain candle extreme
// backed by the ATR stop.
func (g *Generator) stopLoss(last types.Candle, snap *types.CompositeSignalSnapshot, side types.TradeSide) (optional.Option[float64], types.StopLossSource) {
	long := side == types.TradeSideLong
	if (long && snap.Fib.LongSignal) || (!long && snap.Fib.ShortSignal) {
		if snap.Fib.StopPrice > 0 {
			return optional.Some(snap.Fib.StopPrice), types.StopLossSourceFibSwing
		}
	}
	if snap.Pattern.IsEngulfing && snap.Pattern.EngulfingBullish == long &&
		snap.Volume.Ratio >= g.cfg.PatternVolumeRatio {
		return optional.Some(last.Open), types.StopLossSourceEngulfing
	}
	if long && snap.Pattern.IsHammer {
		return optional.Some(last.Low), types.StopLossSourceHammer
	}
	if !long && snap.Pattern.IsShootingStar {
		return optional.Some(last.High), types.StopLossSourceHammer
	}
	if long {
		return optional.Some(last.Low), types.StopLossSourceAtr
	}
	return optional.Some(last.High), types.StopLossSourceAtr
}

func atrStop(snap *types.CompositeSignalSnapshot, side types.TradeSide) optional.Option[float64] {
	if snap.Atr.Value <= 0 {
		return optional.None[float64]()
	}
	if side == types.TradeSideLong {
		return optional.Some(snap.Atr.LongStop)
	}
	return optional.Some(snap.Atr.ShortStop)
}

func (g *Generator) takeProfit(last types.Candle, side types.TradeSide) optional.Option[float64] {
	if g.cfg.TakeProfitAmplitudeMult <= 0 {
		return optional.None[float64]()
	}
	amplitude := last.Close - last.Low
	if amplitude <= 0 {
		return optional.None[float64]()
	}
	if side == types.TradeSideLong {
		return optional.Some(last.Close + amplitude*g.cfg.TakeProfitAmplitudeMult)
	}
	return optional.Some(last.Close - amplitude*g.cfg.TakeProfitAmplitudeMult)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
