package indicator

import (
	"github.com/rxtech-lab/argo-signal/internal/types"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// FibDetectorConfig controls the swing retracement detector.
type FibDetectorConfig struct {
	// SwingLookback is the window scanned for the swing high/low.
	SwingLookback int `yaml:"swing_lookback" json:"swing_lookback" validate:"gte=2"`
	// ZoneLow/ZoneHigh bound the retracement ratio band that counts as "in
	// zone".
	ZoneLow  float64 `yaml:"zone_low" json:"zone_low"`
	ZoneHigh float64 `yaml:"zone_high" json:"zone_high"`
	// MinVolumeRatio is the volume confirmation threshold.
	MinVolumeRatio float64 `yaml:"min_volume_ratio" json:"min_volume_ratio"`
	// StrictMajorTrend suppresses signals when neither major trend flag is
	// set.
	StrictMajorTrend bool `yaml:"strict_major_trend" json:"strict_major_trend"`
	// RequireLegConfirmation demands a matching short-term leg direction.
	RequireLegConfirmation bool `yaml:"require_leg_confirmation" json:"require_leg_confirmation"`
	// StopLossBufferRatio pads the suggested stop beyond the swing extreme.
	StopLossBufferRatio float64 `yaml:"stop_loss_buffer_ratio" json:"stop_loss_buffer_ratio"`
}

// DefaultFibDetectorConfig mirrors the production tuning.
func DefaultFibDetectorConfig() FibDetectorConfig {
	return FibDetectorConfig{
		SwingLookback:          34,
		ZoneLow:                0.382,
		ZoneHigh:               0.618,
		MinVolumeRatio:         1.2,
		StrictMajorTrend:       true,
		RequireLegConfirmation: false,
		StopLossBufferRatio:    0.002,
	}
}

// FibDetector identifies swing retracement entries: an upswing pulling back
// into the zone with volume in a bullish major trend signals long, the
// mirror signals short.
type FibDetector struct {
	cfg FibDetectorConfig
}

// FibContext carries the trend and volume context computed by other units.
type FibContext struct {
	MajorBullish bool
	MajorBearish bool
	LegBullish   bool
	LegBearish   bool
	VolumeRatio  float64
}

// NewFibDetector validates the configuration.
func NewFibDetector(cfg FibDetectorConfig) (*FibDetector, error) {
	if cfg.SwingLookback < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidLookback, "fib swing lookback must be at least 2, got %d", cfg.SwingLookback)
	}
	if cfg.ZoneLow < 0 || cfg.ZoneHigh > 1 || cfg.ZoneLow >= cfg.ZoneHigh {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "fib zone [%f, %f] out of order", cfg.ZoneLow, cfg.ZoneHigh)
	}
	if cfg.StopLossBufferRatio < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "fib stop buffer must be non-negative, got %f", cfg.StopLossBufferRatio)
	}
	return &FibDetector{cfg: cfg}, nil
}

// RetracementRatio places price inside the swing range: 0 at the low, 1 at
// the high, 0.5 when the range is degenerate.
func RetracementRatio(price, swingHigh, swingLow float64) float64 {
	r := swingHigh - swingLow
	if r <= 0 {
		return 0.5
	}
	return (price - swingLow) / r
}

// Detect scans the window and returns the snapshot slot. The window must
// hold at least SwingLookback candles for a swing to be identified; shorter
// windows yield the zero-valued snapshot.
func (d *FibDetector) Detect(window []types.Candle, ctx FibContext) types.FibSnapshot {
	out := types.FibSnapshot{}
	if len(window) < d.cfg.SwingLookback || len(window) == 0 {
		return out
	}

	start := len(window) - d.cfg.SwingLookback
	swingHigh, swingLow := window[start].High, window[start].Low
	highIdx, lowIdx := start, start
	for i := start + 1; i < len(window); i++ {
		if window[i].High > swingHigh {
			swingHigh = window[i].High
			highIdx = i
		}
		if window[i].Low < swingLow {
			swingLow = window[i].Low
			lowIdx = i
		}
	}
	upswing := highIdx > lowIdx

	price := window[len(window)-1].Close
	if swingHigh-swingLow <= 0 || price <= 0 {
		return out
	}

	ratio := RetracementRatio(price, swingHigh, swingLow)
	inZone := ratio >= d.cfg.ZoneLow && ratio <= d.cfg.ZoneHigh
	volumeConfirmed := ctx.VolumeRatio >= d.cfg.MinVolumeRatio

	out.Ratio = ratio
	out.InZone = inZone
	out.Upswing = upswing
	out.SwingHigh = swingHigh
	out.SwingLow = swingLow

	if d.cfg.StrictMajorTrend && !ctx.MajorBullish && !ctx.MajorBearish {
		return out
	}

	legOkLong := !d.cfg.RequireLegConfirmation || ctx.LegBullish
	legOkShort := !d.cfg.RequireLegConfirmation || ctx.LegBearish

	if ctx.MajorBearish && legOkShort && !upswing && inZone && volumeConfirmed {
		out.ShortSignal = true
		out.StopPrice = swingHigh * (1 + d.cfg.StopLossBufferRatio)
	}
	if ctx.MajorBullish && legOkLong && upswing && inZone && volumeConfirmed {
		out.LongSignal = true
		out.StopPrice = swingLow * (1 - d.cfg.StopLossBufferRatio)
	}
	return out
}
