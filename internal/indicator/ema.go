package indicator

import (
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Ema is an exponential moving average seeded with the first observed value,
// alpha = 2/(period+1).
type Ema struct {
	period  int
	alpha   float64
	current float64
	seeded  bool
}

// NewEma creates an EMA unit. Period must be positive.
func NewEma(period int) (*Ema, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema period must be positive, got %d", period)
	}
	return &Ema{
		period: period,
		alpha:  2.0 / float64(period+1),
	}, nil
}

// Next feeds one value and returns the updated average.
func (e *Ema) Next(value float64) float64 {
	if !e.seeded {
		e.current = value
		e.seeded = true
		return e.current
	}
	e.current = value*e.alpha + e.current*(1-e.alpha)
	return e.current
}

// Value returns the current average, 0 before the first value.
func (e *Ema) Value() float64 {
	return e.current
}

// Clone returns an independent copy.
func (e *Ema) Clone() *Ema {
	c := *e
	return &c
}

// Period returns the configured period.
func (e *Ema) Period() int {
	return e.period
}

// EmaStack advances the five trend EMAs together and tracks tunnel crosses
// between the second and third average.
type EmaStack struct {
	emas      [5]*Ema
	prevDiff  float64
	havePrev  bool
	values    [5]float64
}

// DefaultEmaPeriods is the vegas tunnel stack.
var DefaultEmaPeriods = [5]int{12, 144, 169, 576, 676}

// NewEmaStack creates the five-EMA stack. All periods must be positive.
func NewEmaStack(periods [5]int) (*EmaStack, error) {
	s := &EmaStack{}
	for i, p := range periods {
		ema, err := NewEma(p)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidPeriod, err, "ema stack slot %d", i)
		}
		s.emas[i] = ema
	}
	return s, nil
}

// Clone returns an independent copy of the stack and every EMA in it.
func (s *EmaStack) Clone() *EmaStack {
	c := *s
	for i, e := range s.emas {
		c.emas[i] = e.Clone()
	}
	return &c
}

// EmaStackOutput is the stack state after one advance.
type EmaStackOutput struct {
	Values      [5]float64
	CrossedUp   bool
	CrossedDown bool
	LongTrend   bool
	ShortTrend  bool
}

// Next advances all five EMAs on the close price.
func (s *EmaStack) Next(close float64) EmaStackOutput {
	for i, e := range s.emas {
		s.values[i] = e.Next(close)
	}

	out := EmaStackOutput{Values: s.values}

	diff := s.values[1] - s.values[2]
	if s.havePrev {
		out.CrossedUp = s.prevDiff <= 0 && diff > 0
		out.CrossedDown = s.prevDiff >= 0 && diff < 0
	}
	s.prevDiff = diff
	s.havePrev = true

	out.LongTrend = s.values[0] > s.values[1] && s.values[1] > s.values[2] && s.values[2] > s.values[3]
	out.ShortTrend = s.values[0] < s.values[1] && s.values[1] < s.values[2] && s.values[2] < s.values[3]
	return out
}
