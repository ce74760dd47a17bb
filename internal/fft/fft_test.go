package fft

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardRejectsNonPowerOfTwo(t *testing.T) {
	for _, n := range []int{0, 3, 100, 2047} {
		re := make([]float64, n)
		im := make([]float64, n)
		assert.ErrorIs(t, Forward(re, im), ErrInvalidLength, "length %d", n)
	}
}

func TestForwardRejectsMismatchedLengths(t *testing.T) {
	assert.ErrorIs(t, Forward(make([]float64, 8), make([]float64, 4)), ErrInvalidLength)
}

func TestRoundTrip(t *testing.T) {
	const n = 2048
	rng := rand.New(rand.NewSource(1))

	orig := make([]float64, n)
	re := make([]float64, n)
	im := make([]float64, n)
	for i := range orig {
		orig[i] = rng.Float64()*2 - 1
		re[i] = orig[i]
	}

	require.NoError(t, Forward(re, im))
	require.NoError(t, Inverse(re, im))

	for i := range orig {
		assert.InDelta(t, orig[i], re[i], 1e-10, "re[%d]", i)
		assert.InDelta(t, 0.0, im[i], 1e-10, "im[%d]", i)
	}
}

func TestImpulseHasFlatSpectrum(t *testing.T) {
	const n = 64
	re := make([]float64, n)
	im := make([]float64, n)
	re[0] = 1.0

	require.NoError(t, Forward(re, im))
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1.0, re[i], 1e-12)
		assert.InDelta(t, 0.0, im[i], 1e-12)
	}
}

func TestSineConcentratesInOneBin(t *testing.T) {
	const n = 256
	const bin = 10
	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n; i++ {
		re[i] = math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(n))
	}

	require.NoError(t, Forward(re, im))

	for k := 0; k <= n/2; k++ {
		mag := math.Hypot(re[k], im[k])
		if k == bin {
			assert.InDelta(t, float64(n)/2, mag, 1e-9, "bin %d", k)
		} else {
			assert.Less(t, mag, 1e-9, "bin %d should be empty", k)
		}
	}
}

func TestHannWindowShape(t *testing.T) {
	const n = 2048
	w := NewHannWindow(n)

	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 0.0, w[n-1], 1e-12)
	// Peak near the center.
	assert.InDelta(t, 1.0, w[n/2], 1e-5)
	for i := range w {
		assert.GreaterOrEqual(t, w[i], 0.0)
		assert.LessOrEqual(t, w[i], 1.0)
	}
}

// With 50% overlap the summed squared window must stay positive for all
// interior samples; the reducer's normalization step divides by it.
func TestHannOverlapEnergyPositive(t *testing.T) {
	const n = 2048
	const hop = n / 2
	w := NewHannWindow(n)

	total := 8 * n
	sum := make([]float64, total)
	for pos := 0; pos+n <= total; pos += hop {
		for i := 0; i < n; i++ {
			sum[pos+i] += w[i] * w[i]
		}
	}
	for i := n; i < total-n; i++ {
		assert.Greater(t, sum[i], 0.0, "interior sample %d", i)
	}
}
