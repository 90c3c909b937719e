package indicator

import (
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Rsi is a Wilder relative strength index: average gain/loss over the first
// `period` changes seeds two RMAs with alpha = 1/period. Outputs the neutral
// value 50 until the seed window has filled.
type Rsi struct {
	period   int
	alpha    float64
	prev     float64
	hasPrev  bool
	seen     int
	gainSum  float64
	lossSum  float64
	avgGain  float64
	avgLoss  float64
	seeded   bool
}

// NewRsi creates an RSI unit. Period must be positive.
func NewRsi(period int) (*Rsi, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rsi period must be positive, got %d", period)
	}
	return &Rsi{
		period: period,
		alpha:  1.0 / float64(period),
	}, nil
}

// Next feeds one close price and returns the RSI in [0, 100].
func (r *Rsi) Next(close float64) float64 {
	if !r.hasPrev {
		r.prev = close
		r.hasPrev = true
		return 50
	}

	change := close - r.prev
	r.prev = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !r.seeded {
		r.gainSum += gain
		r.lossSum += loss
		r.seen++
		if r.seen < r.period {
			return 50
		}
		r.avgGain = r.gainSum / float64(r.period)
		r.avgLoss = r.lossSum / float64(r.period)
		r.seeded = true
	} else {
		r.avgGain = gain*r.alpha + r.avgGain*(1-r.alpha)
		r.avgLoss = loss*r.alpha + r.avgLoss*(1-r.alpha)
	}

	switch {
	case r.avgLoss == 0 && r.avgGain == 0:
		return 50
	case r.avgLoss == 0:
		return 100
	case r.avgGain == 0:
		return 0
	default:
		return 100 - 100/(1+r.avgGain/r.avgLoss)
	}
}

// Ready reports whether the seed window has filled.
func (r *Rsi) Ready() bool {
	return r.seeded
}

// Clone returns an independent copy.
func (r *Rsi) Clone() *Rsi {
	c := *r
	return &c
}
