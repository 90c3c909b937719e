package indicator

import (
	"slices"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// VolumeRatio compares the current volume against the simple average of the
// preceding window. The current candle is excluded from the average, so a
// ratio above 1 means volume expansion.
type VolumeRatio struct {
	period int
	prev   []float64

	prevRatio float64
}

// VolumeRatioOutput is one advance. Ratio is 0 until at least one prior
// volume is buffered.
type VolumeRatioOutput struct {
	Ratio      float64
	Increasing bool
	Decreasing bool
}

// NewVolumeRatio creates a volume ratio unit. Period must be positive.
func NewVolumeRatio(period int) (*VolumeRatio, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "volume ratio period must be positive, got %d", period)
	}
	return &VolumeRatio{
		period: period,
		prev:   make([]float64, 0, period),
	}, nil
}

// Clone returns an independent copy.
func (v *VolumeRatio) Clone() *VolumeRatio {
	c := *v
	c.prev = slices.Clone(v.prev)
	return &c
}

// Next feeds one candle's volume.
func (v *VolumeRatio) Next(volume float64) VolumeRatioOutput {
	var ratio float64
	if len(v.prev) > 0 {
		sum := 0.0
		for _, p := range v.prev {
			sum += p
		}
		avg := sum / float64(len(v.prev))
		if avg > 0 {
			ratio = volume / avg
		}
	}

	v.prev = append(v.prev, volume)
	if len(v.prev) > v.period {
		v.prev = v.prev[1:]
	}

	out := VolumeRatioOutput{
		Ratio:      ratio,
		Increasing: ratio > v.prevRatio,
		Decreasing: ratio < v.prevRatio,
	}
	v.prevRatio = ratio
	return out
}
