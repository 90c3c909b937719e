package types

import (
	"time"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Candle represents one OHLCV bar for a symbol/timeframe/timestamp.
// A confirmed candle is immutable; an unconfirmed candle may be superseded
// by a later candle carrying the same timestamp.
type Candle struct {
	Symbol    string  `json:"symbol" csv:"symbol"`
	Timeframe string  `json:"timeframe" csv:"timeframe"`
	Timestamp int64   `json:"timestamp" csv:"timestamp"` // milliseconds since epoch
	Open      float64 `json:"open" csv:"open"`
	High      float64 `json:"high" csv:"high"`
	Low       float64 `json:"low" csv:"low"`
	Close     float64 `json:"close" csv:"close"`
	Volume    float64 `json:"volume" csv:"volume"`
	Confirmed bool    `json:"confirmed" csv:"confirmed"`
}

// Validate checks the OHLC invariants: high >= max(open, close) and
// low <= min(open, close).
func (c Candle) Validate() error {
	if c.High < c.Open || c.High < c.Close {
		return errors.Newf(errors.ErrCodeCandleParseFailed, "high %f below open/close for %s@%d", c.High, c.Symbol, c.Timestamp)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return errors.Newf(errors.ErrCodeCandleParseFailed, "low %f above open/close for %s@%d", c.Low, c.Symbol, c.Timestamp)
	}
	return nil
}

// Time converts the millisecond timestamp to time.Time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Body returns the absolute open-close distance.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// UpperShadow returns the distance from the body top to the high.
func (c Candle) UpperShadow() float64 {
	if c.Close > c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerShadow returns the distance from the body bottom to the low.
func (c Candle) LowerShadow() float64 {
	if c.Close > c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// Amplitude returns the high-low range as a percentage of the open price,
// or 0 when the open price is 0.
func (c Candle) Amplitude() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.High - c.Low) / c.Open * 100
}
