package indicator

import (
	"github.com/rxtech-lab/argo-signal/internal/types"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Hammer detects hammer (long lower shadow) and shooting-star (long upper
// shadow) candles by shadow-to-range ratios.
type Hammer struct {
	lowerThreshold float64
	upperThreshold float64
}

// HammerOutput is one detection. All ratios are 0 when the candle range is
// zero.
type HammerOutput struct {
	IsHammer         bool
	IsShootingStar   bool
	LowerShadowRatio float64
	UpperShadowRatio float64
	BodyRatio        float64
}

// NewHammer creates a hammer detector. Thresholds must lie in (0, 1).
func NewHammer(lowerThreshold, upperThreshold float64) (*Hammer, error) {
	if lowerThreshold <= 0 || lowerThreshold >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "hammer lower shadow threshold out of (0,1): %f", lowerThreshold)
	}
	if upperThreshold <= 0 || upperThreshold >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "hammer upper shadow threshold out of (0,1): %f", upperThreshold)
	}
	return &Hammer{
		lowerThreshold: lowerThreshold,
		upperThreshold: upperThreshold,
	}, nil
}

// NewDefaultHammer uses the production 0.7/0.7 thresholds.
func NewDefaultHammer() *Hammer {
	return &Hammer{lowerThreshold: 0.7, upperThreshold: 0.7}
}

// Next feeds one candle.
func (h *Hammer) Next(c types.Candle) HammerOutput {
	r := c.Range()
	if r <= 0 {
		return HammerOutput{}
	}

	lower := (bodyBottom(c.Open, c.Close) - c.Low) / r
	upper := (c.High - bodyTop(c.Open, c.Close)) / r
	body := c.Body() / r

	return HammerOutput{
		IsHammer:         lower > h.lowerThreshold && lower > upper,
		IsShootingStar:   upper > h.upperThreshold && upper > lower,
		LowerShadowRatio: lower,
		UpperShadowRatio: upper,
		BodyRatio:        body,
	}
}
