package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBollingerWarmup(t *testing.T) {
	b, err := NewBollinger(5, 2)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		out := b.Next(101, 99, 100)
		assert.Equal(t, BollingerOutput{}, out)
	}
	out := b.Next(101, 99, 100)
	assert.Equal(t, 100.0, out.Middle)
}

func TestBollingerBands(t *testing.T) {
	b, err := NewBollinger(4, 2)
	require.NoError(t, err)

	closes := []float64{100, 102, 98, 104}
	var out BollingerOutput
	for _, c := range closes {
		out = b.Next(c+1, c-1, c)
	}

	mean := (100.0 + 102 + 98 + 104) / 4
	variance := 0.0
	for _, c := range closes {
		variance += (c - mean) * (c - mean)
	}
	std := math.Sqrt(variance / 4)

	assert.InDelta(t, mean, out.Middle, 1e-12)
	assert.InDelta(t, mean+2*std, out.Upper, 1e-12)
	assert.InDelta(t, mean-2*std, out.Lower, 1e-12)
}

func TestBollingerTouchCounters(t *testing.T) {
	b, err := NewBollinger(3, 1)
	require.NoError(t, err)

	b.Next(101, 99, 100)
	b.Next(103, 99, 102)
	out := b.Next(105, 97, 98)
	assert.Equal(t, 1, out.UpperTouches)
	out = b.Next(105, 99, 100)
	assert.Equal(t, 2, out.UpperTouches)
	// a candle clear of the upper band resets the streak
	out = b.Next(100.2, 99, 100)
	assert.Equal(t, 0, out.UpperTouches)
}

func TestBollingerValidation(t *testing.T) {
	_, err := NewBollinger(1, 2)
	assert.Error(t, err)
	_, err = NewBollinger(10, 0)
	assert.Error(t, err)
}

func TestVolumeRatioExcludesCurrent(t *testing.T) {
	v, err := NewVolumeRatio(3)
	require.NoError(t, err)

	out := v.Next(100)
	assert.Equal(t, 0.0, out.Ratio)

	// avg of [100] = 100, ratio = 200/100 = 2
	out = v.Next(200)
	assert.InDelta(t, 2.0, out.Ratio, 1e-12)
	assert.True(t, out.Increasing)

	// avg of [100, 200] = 150, ratio = 150/150 = 1
	out = v.Next(150)
	assert.InDelta(t, 1.0, out.Ratio, 1e-12)
	assert.True(t, out.Decreasing)
}

func TestVolumeRatioWindowEviction(t *testing.T) {
	v, err := NewVolumeRatio(2)
	require.NoError(t, err)

	v.Next(100)
	v.Next(100)
	v.Next(100)
	// window holds the last 2 volumes = [100, 100]
	out := v.Next(300)
	assert.InDelta(t, 3.0, out.Ratio, 1e-12)
}

func TestVolumeRatioZeroAverage(t *testing.T) {
	v, err := NewVolumeRatio(3)
	require.NoError(t, err)

	v.Next(0)
	out := v.Next(50)
	assert.Equal(t, 0.0, out.Ratio)

	_, err = NewVolumeRatio(0)
	assert.Error(t, err)
}
