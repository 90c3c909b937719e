package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Atr is a Wilder average true range. The first period-1 outputs are exactly
// 0 while the seed buffer fills; the period-th output is the simple average
// of the buffered true ranges; after that the unit switches to exponential
// smoothing with alpha = 1/period.
type Atr struct {
	period    int
	alpha     float64
	prevClose float64
	hasPrev   bool
	seedSum   float64
	seen      int
	current   float64
	seeded    bool
}

// NewAtr creates an ATR unit. Period must be positive.
func NewAtr(period int) (*Atr, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "atr period must be positive, got %d", period)
	}
	return &Atr{
		period: period,
		alpha:  1.0 / float64(period),
	}, nil
}

// trueRange uses the previous close when available, else the plain high-low
// range.
func (a *Atr) trueRange(high, low, close float64) float64 {
	tr := high - low
	if a.hasPrev {
		tr = math.Max(tr, math.Abs(high-a.prevClose))
		tr = math.Max(tr, math.Abs(low-a.prevClose))
	}
	a.prevClose = close
	a.hasPrev = true
	return tr
}

// Next feeds one candle and returns the smoothed true range.
func (a *Atr) Next(high, low, close float64) float64 {
	tr := a.trueRange(high, low, close)

	if !a.seeded {
		a.seedSum += tr
		a.seen++
		if a.seen < a.period {
			return 0
		}
		a.current = a.seedSum / float64(a.period)
		a.seeded = true
		return a.current
	}

	a.current = tr*a.alpha + a.current*(1-a.alpha)
	return a.current
}

// Ready reports whether the seed buffer has filled.
func (a *Atr) Ready() bool {
	return a.seeded
}

// Value returns the current ATR, 0 during warm-up.
func (a *Atr) Value() float64 {
	if !a.seeded {
		return 0
	}
	return a.current
}

// Clone returns an independent copy.
func (a *Atr) Clone() *Atr {
	c := *a
	return &c
}

// AtrStop derives trailing stop prices from an ATR unit.
type AtrStop struct {
	atr        *Atr
	multiplier float64
}

// AtrStopOutput carries the stop prices for both sides; both are 0 while the
// underlying ATR warms up.
type AtrStopOutput struct {
	Atr       float64
	LongStop  float64
	ShortStop float64
}

// NewAtrStop creates an ATR trailing stop unit.
func NewAtrStop(period int, multiplier float64) (*AtrStop, error) {
	if multiplier <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidMultiplier, "atr stop multiplier must be positive, got %f", multiplier)
	}
	atr, err := NewAtr(period)
	if err != nil {
		return nil, err
	}
	return &AtrStop{atr: atr, multiplier: multiplier}, nil
}

// Clone returns an independent copy, including the underlying ATR.
func (s *AtrStop) Clone() *AtrStop {
	return &AtrStop{atr: s.atr.Clone(), multiplier: s.multiplier}
}

// Next feeds one candle.
func (s *AtrStop) Next(high, low, close float64) AtrStopOutput {
	atr := s.atr.Next(high, low, close)
	if atr == 0 {
		return AtrStopOutput{}
	}
	return AtrStopOutput{
		Atr:       atr,
		LongStop:  close - s.multiplier*atr,
		ShortStop: close + s.multiplier*atr,
	}
}
