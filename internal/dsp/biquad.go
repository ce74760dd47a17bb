// Package dsp implements the real-time effect chain applied to captured
// PCM: gain boost, biquad high/low-pass filtering and the chunk-rate
// noise gate. All processing operates on interleaved 16-bit little-endian
// samples, the capture wire format.
package dsp

import (
	"math"

	"github.com/vdo/FRecorder/internal/config"
)

// Coeffs are normalized biquad coefficients (already divided by a0).
type Coeffs struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// HighPass designs a second-order Butterworth high-pass section.
func HighPass(fc, fs, q float64) Coeffs {
	w0 := 2.0 * math.Pi * fc / fs
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)
	a0 := 1.0 + alpha
	return Coeffs{
		B0: (1.0 + cosw0) / 2.0 / a0,
		B1: -(1.0 + cosw0) / a0,
		B2: (1.0 + cosw0) / 2.0 / a0,
		A1: -2.0 * cosw0 / a0,
		A2: (1.0 - alpha) / a0,
	}
}

// LowPass designs a second-order Butterworth low-pass section.
func LowPass(fc, fs, q float64) Coeffs {
	w0 := 2.0 * math.Pi * fc / fs
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)
	a0 := 1.0 + alpha
	return Coeffs{
		B0: (1.0 - cosw0) / 2.0 / a0,
		B1: (1.0 - cosw0) / a0,
		B2: (1.0 - cosw0) / 2.0 / a0,
		A1: -2.0 * cosw0 / a0,
		A2: (1.0 - alpha) / a0,
	}
}

// Biquad is a direct-form-I section with persistent state. A stereo
// stream is filtered as one interleaved sequence through a single state,
// so channel content leaks between left and right; that matches the
// recorder's established behavior.
type Biquad struct {
	c              Coeffs
	x1, x2, y1, y2 float64
}

// NewBiquad returns a section with zeroed state.
func NewBiquad(c Coeffs) *Biquad {
	return &Biquad{c: c}
}

// Reset zeroes the filter state.
func (b *Biquad) Reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// ProcessSample runs one sample through the difference equation.
func (b *Biquad) ProcessSample(x float64) float64 {
	y := b.c.B0*x + b.c.B1*b.x1 + b.c.B2*b.x2 - b.c.A1*b.y1 - b.c.A2*b.y2
	b.x2, b.x1 = b.x1, x
	b.y2, b.y1 = b.y1, y
	return y
}

// ProcessInt16 filters one integer sample with rounded saturation.
func (b *Biquad) ProcessInt16(s int16) int16 {
	return clampInt16(int64(math.Round(b.ProcessSample(float64(s)))))
}

func clampInt16(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// HPFMode selects the high-pass cutoff.
type HPFMode int

const (
	HPFOff HPFMode = iota
	HPF80
	HPF120
)

// Cutoff returns the mode's frequency in Hz; ok is false for off.
func (m HPFMode) Cutoff() (float64, bool) {
	switch m {
	case HPF80:
		return config.HPFFreq80, true
	case HPF120:
		return config.HPFFreq120, true
	default:
		return 0, false
	}
}

// LPFMode selects the low-pass cutoff.
type LPFMode int

const (
	LPFOff LPFMode = iota
	LPF9500
	LPF15000
)

// Cutoff returns the mode's frequency in Hz; ok is false for off.
func (m LPFMode) Cutoff() (float64, bool) {
	switch m {
	case LPF9500:
		return config.LPFFreq9500, true
	case LPF15000:
		return config.LPFFreq15000, true
	default:
		return 0, false
	}
}

// GainLevel selects the capture gain boost.
type GainLevel int

const (
	GainOff GainLevel = iota
	GainBoost6dB
	GainBoost12dB
)

// Multiplier returns the linear gain for the level.
func (l GainLevel) Multiplier() float64 {
	switch l {
	case GainBoost6dB:
		return config.GainMultiplier6dB
	case GainBoost12dB:
		return config.GainMultiplier12dB
	default:
		return 1.0
	}
}
