// Package config holds the programmatic configuration surface of the
// recording core. There is no file or environment configuration: the host
// application constructs these values and hands them to the engine.
package config

import (
	"github.com/go-playground/validator/v10"
)

// Supported capture sample rates in Hz.
const (
	SampleRate8000  = 8000
	SampleRate16000 = 16000
	SampleRate22050 = 22050
	SampleRate32000 = 32000
	SampleRate44100 = 44100
	SampleRate48000 = 48000
)

// RecordingVisualizationIntervalMs is the progress callback period.
// Duration accounting advances only at these boundaries.
const RecordingVisualizationIntervalMs = 50

// Noise gate tuning. Threshold is in raw 16-bit RMS units; hysteresis is
// a fraction of the threshold.
const (
	NoiseGateThresholdRMS = 400
	NoiseGateHysteresis   = 0.5
	NoiseGateAttackMs     = 10.0
	NoiseGateReleaseMs    = 500.0
	NoiseGateHoldMs       = 300.0
)

// Gain boost multipliers.
const (
	GainMultiplier6dB  = 2.0
	GainMultiplier12dB = 4.0
)

// Biquad filter cutoffs in Hz and the shared Butterworth Q.
const (
	HPFFreq80    = 80.0
	HPFFreq120   = 120.0
	LPFFreq9500  = 9500.0
	LPFFreq15000 = 15000.0
	ButterworthQ = 0.7071
)

// Noise reduction defaults.
const (
	DefaultNoiseReductionDB          = 12.0
	DefaultNoiseReductionSensitivity = 12.0
	DefaultNoiseFreqSmoothing        = 2
	DefaultNoiseProfileSeconds       = 1.0
)

// Format describes a capture session's PCM format. Bit depth is always 16.
type Format struct {
	SampleRate int `validate:"oneof=8000 16000 22050 32000 44100 48000"`
	Channels   int `validate:"min=1,max=2"`
}

// BytesPerFrame is the interleaved frame size: channels x 2 bytes.
func (f Format) BytesPerFrame() int {
	return f.Channels * 2
}

// ByteRate is sampleRate x channels x 2, as written to the WAV header.
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * 2
}

// Reduction holds the offline noise reduction parameters.
type Reduction struct {
	ReductionDB        float64 `validate:"min=0,max=24"`
	Sensitivity        float64 `validate:"min=0,max=24"`
	FreqSmoothingBands int     `validate:"min=0,max=6"`
	ProfileSeconds     float64 `validate:"min=0.5,max=5.0"`
}

// DefaultReduction returns the stock reduction parameters.
func DefaultReduction() Reduction {
	return Reduction{
		ReductionDB:        DefaultNoiseReductionDB,
		Sensitivity:        DefaultNoiseReductionSensitivity,
		FreqSmoothingBands: DefaultNoiseFreqSmoothing,
		ProfileSeconds:     DefaultNoiseProfileSeconds,
	}
}

var validate = validator.New()

// ValidateFormat checks a host-supplied format against the allowed set.
func ValidateFormat(f Format) error {
	return validate.Struct(f)
}

// ValidateReduction checks host-supplied noise reduction parameters.
func ValidateReduction(r Reduction) error {
	return validate.Struct(r)
}
