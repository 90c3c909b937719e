package indicator

import (
	"math"
	"slices"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Bollinger computes SMA +/- multiplier x population standard deviation over
// a fixed window, plus consecutive band-touch counters.
type Bollinger struct {
	period     int
	multiplier float64
	window     []float64

	upperTouches int
	lowerTouches int
}

// BollingerOutput is one Bollinger advance. All bands are 0 until the window
// is full.
type BollingerOutput struct {
	Upper        float64
	Middle       float64
	Lower        float64
	UpperTouches int
	LowerTouches int
}

// NewBollinger creates a Bollinger band unit.
func NewBollinger(period int, multiplier float64) (*Bollinger, error) {
	if period <= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "bollinger period must be above 1, got %d", period)
	}
	if multiplier <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidMultiplier, "bollinger multiplier must be positive, got %f", multiplier)
	}
	return &Bollinger{
		period:     period,
		multiplier: multiplier,
		window:     make([]float64, 0, period),
	}, nil
}

// Clone returns an independent copy.
func (b *Bollinger) Clone() *Bollinger {
	c := *b
	c.window = slices.Clone(b.window)
	return &c
}

// Next feeds one candle's high/low/close. Touch counters track consecutive
// candles whose extremes reach a band.
func (b *Bollinger) Next(high, low, close float64) BollingerOutput {
	b.window = append(b.window, close)
	if len(b.window) > b.period {
		b.window = b.window[1:]
	}
	if len(b.window) < b.period {
		return BollingerOutput{}
	}

	mean := 0.0
	for _, v := range b.window {
		mean += v
	}
	mean /= float64(b.period)

	variance := 0.0
	for _, v := range b.window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(b.period)
	std := math.Sqrt(variance)

	upper := mean + b.multiplier*std
	lower := mean - b.multiplier*std

	if high >= upper {
		b.upperTouches++
	} else {
		b.upperTouches = 0
	}
	if low <= lower {
		b.lowerTouches++
	} else {
		b.lowerTouches = 0
	}

	return BollingerOutput{
		Upper:        upper,
		Middle:       mean,
		Lower:        lower,
		UpperTouches: b.upperTouches,
		LowerTouches: b.lowerTouches,
	}
}
