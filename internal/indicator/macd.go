package indicator

import (
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Macd computes the moving average convergence divergence from three EMAs.
type Macd struct {
	fast   *Ema
	slow   *Ema
	signal *Ema
}

// MacdOutput is one MACD advance.
type MacdOutput struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// NewMacd creates a MACD unit. The fast period must be smaller than the slow
// period and all periods must be positive.
func NewMacd(fastPeriod, slowPeriod, signalPeriod int) (*Macd, error) {
	if fastPeriod >= slowPeriod {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "macd fast period %d must be below slow period %d", fastPeriod, slowPeriod)
	}
	fast, err := NewEma(fastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := NewEma(slowPeriod)
	if err != nil {
		return nil, err
	}
	signal, err := NewEma(signalPeriod)
	if err != nil {
		return nil, err
	}
	return &Macd{fast: fast, slow: slow, signal: signal}, nil
}

// Clone returns an independent copy of all three EMAs.
func (m *Macd) Clone() *Macd {
	return &Macd{
		fast:   m.fast.Clone(),
		slow:   m.slow.Clone(),
		signal: m.signal.Clone(),
	}
}

// Next feeds one close price.
func (m *Macd) Next(close float64) MacdOutput {
	line := m.fast.Next(close) - m.slow.Next(close)
	sig := m.signal.Next(line)
	return MacdOutput{
		Line:      line,
		Signal:    sig,
		Histogram: line - sig,
	}
}
