package indicator

import (
	"github.com/rxtech-lab/argo-signal/internal/types"
)

// Engulfing detects bullish and bearish engulfing patterns. Stateless aside
// from remembering the previous candle.
type Engulfing struct {
	last    types.Candle
	hasLast bool
}

// EngulfingOutput is one detection. BodyRatio is 0 when no pattern is
// detected or when the candle range is zero.
type EngulfingOutput struct {
	IsEngulfing bool
	Bullish     bool
	BodyRatio   float64
}

// NewEngulfing creates an engulfing detector.
func NewEngulfing() *Engulfing {
	return &Engulfing{}
}

// Clone returns an independent copy.
func (e *Engulfing) Clone() *Engulfing {
	c := *e
	return &c
}

// Next feeds one candle.
func (e *Engulfing) Next(c types.Candle) EngulfingOutput {
	if !e.hasLast {
		e.last = c
		e.hasLast = true
		return EngulfingOutput{}
	}
	last := e.last
	e.last = c

	// bullish: previous candle bearish, current candle bullish with a body
	// covering the previous body
	bullish := last.IsBearish() && c.IsBullish() &&
		c.Open <= last.Close && c.Close >= last.Open

	bearish := last.IsBullish() && c.IsBearish() &&
		c.Open >= last.Close && c.Close <= last.Open

	if !bullish && !bearish {
		return EngulfingOutput{}
	}

	ratio := 0.0
	if r := c.Range(); r > 0 {
		ratio = c.Body() / r
	}
	return EngulfingOutput{
		IsEngulfing: true,
		Bullish:     bullish,
		BodyRatio:   ratio,
	}
}
