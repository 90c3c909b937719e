package indicator

import (
	"math"
	"slices"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// maxNweWindow caps the kernel lookback.
const maxNweWindow = 500

// Nwe is a non-repainting Nadaraya-Watson envelope: a Gaussian-kernel
// weighted mean as the centerline, with envelope half-width equal to the
// mean absolute error over window-1 samples times the multiplier.
//
// Returns (0, 0) until the MAE window is fully populated. During warm-up the
// kernel mean renormalizes by the partial weight sum actually available.
type Nwe struct {
	bandwidth float64
	mult      float64
	window    int
	maePeriod int
	weights   []float64

	values    []float64
	absErrs   []float64
	absErrSum float64
}

// NweOutput is one envelope advance.
type NweOutput struct {
	Upper float64
	Mid   float64
	Lower float64
	Ready bool
}

// NewNwe creates an envelope unit. The window is clamped to [2, 500]; the
// multiplier must be positive. A bandwidth h <= 0 degenerates to a kernel
// concentrated entirely on lag 0 rather than a division fault.
func NewNwe(bandwidth, mult float64, window int) (*Nwe, error) {
	if mult <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidMultiplier, "nwe multiplier must be positive, got %f", mult)
	}
	if window < 2 {
		window = 2
	}
	if window > maxNweWindow {
		window = maxNweWindow
	}
	maePeriod := window - 1

	weights := make([]float64, window)
	if bandwidth <= 0 {
		weights[0] = 1
	} else {
		denom := 2 * bandwidth * bandwidth
		for i := range weights {
			x := float64(i)
			weights[i] = math.Exp(-(x * x) / denom)
		}
	}

	return &Nwe{
		bandwidth: bandwidth,
		mult:      mult,
		window:    window,
		maePeriod: maePeriod,
		weights:   weights,
		values:    make([]float64, 0, window+1),
		absErrs:   make([]float64, 0, maePeriod+1),
	}, nil
}

// Clone returns an independent copy. The precomputed kernel weights are
// immutable after construction and stay shared.
func (n *Nwe) Clone() *Nwe {
	c := *n
	c.values = slices.Clone(n.values)
	c.absErrs = slices.Clone(n.absErrs)
	return &c
}

// Next feeds one close price.
func (n *Nwe) Next(close float64) NweOutput {
	n.values = append(n.values, close)
	if len(n.values) > n.window {
		n.values = n.values[1:]
	}

	mid, ok := n.kernelMean()
	if !ok {
		return NweOutput{}
	}

	absErr := math.Abs(close - mid)
	n.absErrs = append(n.absErrs, absErr)
	n.absErrSum += absErr
	if len(n.absErrs) > n.maePeriod {
		n.absErrSum -= n.absErrs[0]
		n.absErrs = n.absErrs[1:]
	}

	if len(n.absErrs) < n.maePeriod {
		return NweOutput{}
	}

	mae := n.absErrSum / float64(n.maePeriod) * n.mult
	return NweOutput{
		Upper: mid + mae,
		Mid:   mid,
		Lower: mid - mae,
		Ready: true,
	}
}

// kernelMean weights the newest value with lag 0.
func (n *Nwe) kernelMean() (float64, bool) {
	available := len(n.values)
	if available == 0 {
		return 0, false
	}

	sum, sumw := 0.0, 0.0
	for lag := 0; lag < available; lag++ {
		price := n.values[available-1-lag]
		w := n.weights[lag]
		sum += price * w
		sumw += w
	}
	if sumw == 0 {
		return 0, false
	}
	return sum / sumw, true
}

// Weights exposes the precomputed kernel for inspection.
func (n *Nwe) Weights() []float64 {
	return n.weights
}
