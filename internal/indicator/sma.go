package indicator

import (
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Sma is a simple moving average over a fixed window, ring-buffered so each
// advance is O(1).
type Sma struct {
	period int
	buf    []float64
	head   int
	count  int
	sum    float64
}

// NewSma creates an SMA unit. Period must be positive.
func NewSma(period int) (*Sma, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "sma period must be positive, got %d", period)
	}
	return &Sma{
		period: period,
		buf:    make([]float64, period),
	}, nil
}

// Next feeds one value and returns the current average. Returns 0 until the
// window is full.
func (s *Sma) Next(value float64) float64 {
	if s.count == s.period {
		s.sum -= s.buf[s.head]
	} else {
		s.count++
	}
	s.buf[s.head] = value
	s.sum += value
	s.head = (s.head + 1) % s.period

	if s.count < s.period {
		return 0
	}
	return s.sum / float64(s.period)
}

// Ready reports whether the window has filled.
func (s *Sma) Ready() bool {
	return s.count >= s.period
}

// Value returns the current average, 0 until the window is full.
func (s *Sma) Value() float64 {
	if s.count < s.period {
		return 0
	}
	return s.sum / float64(s.period)
}
