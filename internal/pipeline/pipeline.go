// Package pipeline owns a configurable set of indicator units and advances
// them together, one candle at a time, into a composite snapshot.
package pipeline

import (
	"slices"

	"github.com/rxtech-lab/argo-signal/internal/indicator"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// EmaConfig enables the five-EMA trend stack.
type EmaConfig struct {
	Periods [5]int `yaml:"periods" json:"periods"`
}

// VolumeConfig enables the volume ratio unit.
type VolumeConfig struct {
	Period int `yaml:"period" json:"period"`
}

// RsiConfig enables the RSI unit with its threshold flags.
type RsiConfig struct {
	Period     int     `yaml:"period" json:"period"`
	Overbought float64 `yaml:"overbought" json:"overbought"`
	Oversold   float64 `yaml:"oversold" json:"oversold"`
}

// BollingerConfig enables the Bollinger band unit.
type BollingerConfig struct {
	Period     int     `yaml:"period" json:"period"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// PatternConfig enables the candle-pattern detectors.
type PatternConfig struct {
	HammerLowerShadow float64 `yaml:"hammer_lower_shadow" json:"hammer_lower_shadow"`
	HammerUpperShadow float64 `yaml:"hammer_upper_shadow" json:"hammer_upper_shadow"`
}

// AtrConfig enables the ATR unit and its trailing stops.
type AtrConfig struct {
	Period         int     `yaml:"period" json:"period"`
	StopMultiplier float64 `yaml:"stop_multiplier" json:"stop_multiplier"`
}

// NweConfig enables the Nadaraya-Watson envelope.
type NweConfig struct {
	Bandwidth  float64 `yaml:"bandwidth" json:"bandwidth"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	Window     int     `yaml:"window" json:"window"`
}

// MacdConfig enables the MACD unit.
type MacdConfig struct {
	FastPeriod   int `yaml:"fast_period" json:"fast_period"`
	SlowPeriod   int `yaml:"slow_period" json:"slow_period"`
	SignalPeriod int `yaml:"signal_period" json:"signal_period"`
}

// Config selects the indicator units a pipeline runs. A nil section leaves
// that unit absent and its snapshot slot zero-valued.
type Config struct {
	Ema       *EmaConfig                  `yaml:"ema,omitempty" json:"ema,omitempty"`
	Volume    *VolumeConfig               `yaml:"volume,omitempty" json:"volume,omitempty"`
	Rsi       *RsiConfig                  `yaml:"rsi,omitempty" json:"rsi,omitempty"`
	Bollinger *BollingerConfig            `yaml:"bollinger,omitempty" json:"bollinger,omitempty"`
	Pattern   *PatternConfig              `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Atr       *AtrConfig                  `yaml:"atr,omitempty" json:"atr,omitempty"`
	Nwe       *NweConfig                  `yaml:"nwe,omitempty" json:"nwe,omitempty"`
	Macd      *MacdConfig                 `yaml:"macd,omitempty" json:"macd,omitempty"`
	Fib       *indicator.FibDetectorConfig `yaml:"fib,omitempty" json:"fib,omitempty"`
}

// DefaultConfig enables every unit with production parameters.
func DefaultConfig() Config {
	fib := indicator.DefaultFibDetectorConfig()
	return Config{
		Ema:       &EmaConfig{Periods: indicator.DefaultEmaPeriods},
		Volume:    &VolumeConfig{Period: 17},
		Rsi:       &RsiConfig{Period: 14, Overbought: 70, Oversold: 30},
		Bollinger: &BollingerConfig{Period: 13, Multiplier: 2.5},
		Pattern:   &PatternConfig{HammerLowerShadow: 0.7, HammerUpperShadow: 0.7},
		Atr:       &AtrConfig{Period: 14, StopMultiplier: 1.5},
		Nwe:       &NweConfig{Bandwidth: 8, Multiplier: 3, Window: 500},
		Macd:      &MacdConfig{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
		Fib:       &fib,
	}
}

// Pipeline advances all configured units exactly once per candle, in a
// fixed order, and assembles their outputs into one composite snapshot. The
// caller owns the returned snapshot.
type Pipeline struct {
	cfg Config

	emaStack  *indicator.EmaStack
	volume    *indicator.VolumeRatio
	rsi       *indicator.Rsi
	bollinger *indicator.Bollinger
	engulfing *indicator.Engulfing
	hammer    *indicator.Hammer
	atrStop   *indicator.AtrStop
	nwe       *indicator.Nwe
	macd      *indicator.Macd
	fib       *indicator.FibDetector

	// window buffers candles for the swing detector; bounded by the
	// largest lookback any unit needs.
	window      []types.Candle
	maxLookback int
}

// New builds a pipeline from the configuration, validating every unit's
// parameters.
func New(cfg Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}
	var err error

	lookback := 1
	grow := func(n int) {
		if n > lookback {
			lookback = n
		}
	}

	if cfg.Ema != nil {
		if p.emaStack, err = indicator.NewEmaStack(cfg.Ema.Periods); err != nil {
			return nil, err
		}
		for _, period := range cfg.Ema.Periods {
			grow(period)
		}
	}
	if cfg.Volume != nil {
		if p.volume, err = indicator.NewVolumeRatio(cfg.Volume.Period); err != nil {
			return nil, err
		}
		grow(cfg.Volume.Period + 1)
	}
	if cfg.Rsi != nil {
		if cfg.Rsi.Oversold >= cfg.Rsi.Overbought {
			return nil, errors.Newf(errors.ErrCodeInvalidThreshold,
				"rsi oversold %f must be below overbought %f", cfg.Rsi.Oversold, cfg.Rsi.Overbought)
		}
		if p.rsi, err = indicator.NewRsi(cfg.Rsi.Period); err != nil {
			return nil, err
		}
		grow(cfg.Rsi.Period + 1)
	}
	if cfg.Bollinger != nil {
		if p.bollinger, err = indicator.NewBollinger(cfg.Bollinger.Period, cfg.Bollinger.Multiplier); err != nil {
			return nil, err
		}
		grow(cfg.Bollinger.Period)
	}
	if cfg.Pattern != nil {
		p.engulfing = indicator.NewEngulfing()
		if p.hammer, err = indicator.NewHammer(cfg.Pattern.HammerLowerShadow, cfg.Pattern.HammerUpperShadow); err != nil {
			return nil, err
		}
		grow(2)
	}
	if cfg.Atr != nil {
		if p.atrStop, err = indicator.NewAtrStop(cfg.Atr.Period, cfg.Atr.StopMultiplier); err != nil {
			return nil, err
		}
		grow(cfg.Atr.Period)
	}
	if cfg.Nwe != nil {
		if p.nwe, err = indicator.NewNwe(cfg.Nwe.Bandwidth, cfg.Nwe.Multiplier, cfg.Nwe.Window); err != nil {
			return nil, err
		}
		grow(cfg.Nwe.Window)
	}
	if cfg.Macd != nil {
		if p.macd, err = indicator.NewMacd(cfg.Macd.FastPeriod, cfg.Macd.SlowPeriod, cfg.Macd.SignalPeriod); err != nil {
			return nil, err
		}
		grow(cfg.Macd.SlowPeriod + cfg.Macd.SignalPeriod)
	}
	if cfg.Fib != nil {
		if p.fib, err = indicator.NewFibDetector(*cfg.Fib); err != nil {
			return nil, err
		}
		grow(cfg.Fib.SwingLookback)
	}

	p.maxLookback = lookback
	p.window = make([]types.Candle, 0, lookback)
	return p, nil
}

// Clone returns an independent pipeline with identical unit state. Advancing
// the clone never touches the original, so a caller can stage an advance and
// throw the clone away if a later step fails.
func (p *Pipeline) Clone() *Pipeline {
	c := &Pipeline{
		cfg:         p.cfg,
		maxLookback: p.maxLookback,
		window:      slices.Clone(p.window),
	}
	if p.emaStack != nil {
		c.emaStack = p.emaStack.Clone()
	}
	if p.volume != nil {
		c.volume = p.volume.Clone()
	}
	if p.rsi != nil {
		c.rsi = p.rsi.Clone()
	}
	if p.bollinger != nil {
		c.bollinger = p.bollinger.Clone()
	}
	if p.engulfing != nil {
		c.engulfing = p.engulfing.Clone()
	}
	if p.atrStop != nil {
		c.atrStop = p.atrStop.Clone()
	}
	if p.nwe != nil {
		c.nwe = p.nwe.Clone()
	}
	if p.macd != nil {
		c.macd = p.macd.Clone()
	}
	// hammer and fib hold only configuration, never per-candle state
	c.hammer = p.hammer
	c.fib = p.fib
	return c
}

// MinLookback returns the number of candles the slowest unit needs before
// its output stabilizes.
func (p *Pipeline) MinLookback() int {
	return p.maxLookback
}

// Next advances every configured unit on one candle and assembles the
// composite snapshot. Advance order: ema, volume, rsi, bollinger, patterns,
// atr, nwe, macd, fib (fib last because it consumes the volume and trend
// slots).
func (p *Pipeline) Next(c types.Candle) types.CompositeSignalSnapshot {
	snap := types.CompositeSignalSnapshot{Timestamp: c.Timestamp}

	p.window = append(p.window, c)
	if len(p.window) > p.maxLookback {
		p.window = p.window[1:]
	}

	if p.emaStack != nil {
		out := p.emaStack.Next(c.Close)
		snap.Ema = types.EmaSnapshot{
			Ema1:        out.Values[0],
			Ema2:        out.Values[1],
			Ema3:        out.Values[2],
			Ema4:        out.Values[3],
			Ema5:        out.Values[4],
			CrossedUp:   out.CrossedUp,
			CrossedDown: out.CrossedDown,
			LongTrend:   out.LongTrend,
			ShortTrend:  out.ShortTrend,
		}
	}
	if p.volume != nil {
		out := p.volume.Next(c.Volume)
		snap.Volume = types.VolumeSnapshot{
			Ratio:      out.Ratio,
			Increasing: out.Increasing,
			Decreasing: out.Decreasing,
		}
	}
	if p.rsi != nil {
		value := p.rsi.Next(c.Close)
		snap.Rsi = types.RsiSnapshot{
			Value:      value,
			Overbought: value >= p.cfg.Rsi.Overbought,
			Oversold:   value <= p.cfg.Rsi.Oversold,
		}
	}
	if p.bollinger != nil {
		out := p.bollinger.Next(c.High, c.Low, c.Close)
		snap.Bollinger = types.BollingerSnapshot{
			Upper:        out.Upper,
			Middle:       out.Middle,
			Lower:        out.Lower,
			UpperTouches: out.UpperTouches,
			LowerTouches: out.LowerTouches,
		}
	}
	if p.engulfing != nil {
		eng := p.engulfing.Next(c)
		ham := p.hammer.Next(c)
		snap.Pattern = types.PatternSnapshot{
			IsEngulfing:        eng.IsEngulfing,
			EngulfingBullish:   eng.Bullish,
			EngulfingBodyRatio: eng.BodyRatio,
			IsHammer:           ham.IsHammer,
			IsShootingStar:     ham.IsShootingStar,
			UpperShadowRatio:   ham.UpperShadowRatio,
			LowerShadowRatio:   ham.LowerShadowRatio,
		}
	}
	if p.atrStop != nil {
		out := p.atrStop.Next(c.High, c.Low, c.Close)
		snap.Atr = types.AtrSnapshot{
			Value:     out.Atr,
			LongStop:  out.LongStop,
			ShortStop: out.ShortStop,
		}
	}
	if p.nwe != nil {
		out := p.nwe.Next(c.Close)
		snap.Nwe = types.NweSnapshot{
			Upper: out.Upper,
			Mid:   out.Mid,
			Lower: out.Lower,
		}
	}
	if p.macd != nil {
		out := p.macd.Next(c.Close)
		snap.Macd = types.MacdSnapshot{
			Line:      out.Line,
			Signal:    out.Signal,
			Histogram: out.Histogram,
		}
	}
	if p.fib != nil {
		legBullish, legBearish := p.legDirection()
		snap.Fib = p.fib.Detect(p.window, indicator.FibContext{
			MajorBullish: snap.Ema.LongTrend,
			MajorBearish: snap.Ema.ShortTrend,
			LegBullish:   legBullish,
			LegBearish:   legBearish,
			VolumeRatio:  snap.Volume.Ratio,
		})
	}

	return snap
}

// legDirection reads the short-term leg off the last three closes.
func (p *Pipeline) legDirection() (bullish, bearish bool) {
	n := len(p.window)
	if n < 3 {
		return false, false
	}
	a, b, c := p.window[n-3].Close, p.window[n-2].Close, p.window[n-1].Close
	return a < b && b < c, a > b && b > c
}
