package dsp

import (
	"encoding/binary"
	"math"

	"github.com/vdo/FRecorder/internal/config"
)

// GateState is the noise gate envelope state.
type GateState int

const (
	GateClosed GateState = iota
	GateAttack
	GateOpen
	GateHold
	GateRelease
)

// Gate is a chunk-rate RMS-driven noise gate. The state machine advances
// once per capture chunk; the resulting envelope scales every sample in
// the chunk while below 1.
type Gate struct {
	threshold   float64
	hysteresis  float64
	attackStep  float64
	releaseStep float64
	holdSamples int64

	state       GateState
	envelope    float64
	holdCounter int64
}

// NewGate builds a gate from the stock tuning at the given sample rate.
func NewGate(sampleRate int) *Gate {
	return &Gate{
		threshold:   config.NoiseGateThresholdRMS,
		hysteresis:  config.NoiseGateThresholdRMS * config.NoiseGateHysteresis,
		attackStep:  1000.0 / (float64(sampleRate) * config.NoiseGateAttackMs),
		releaseStep: 1000.0 / (float64(sampleRate) * config.NoiseGateReleaseMs),
		holdSamples: int64(float64(sampleRate) * config.NoiseGateHoldMs / 1000.0),
	}
}

// Reset returns the gate to its initial closed state.
func (g *Gate) Reset() {
	g.state = GateClosed
	g.envelope = 0
	g.holdCounter = 0
}

// SnapOpen forces the gate fully open; used when the gate is disabled so
// re-enabling does not fade in from a stale envelope.
func (g *Gate) SnapOpen() {
	g.state = GateOpen
	g.envelope = 1.0
	g.holdCounter = 0
}

// State returns the current state.
func (g *Gate) State() GateState {
	return g.state
}

// Envelope returns the current envelope in [0, 1].
func (g *Gate) Envelope() float64 {
	return g.envelope
}

// Process advances the state machine over one chunk of interleaved
// 16-bit PCM and applies the envelope in place. The chunk length must be
// even.
func (g *Gate) Process(pcm []byte) {
	n := int64(len(pcm) / 2)
	if n == 0 {
		return
	}

	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		sumSquares += s * s
	}
	rms := math.Sqrt(sumSquares / float64(n))

	switch g.state {
	case GateClosed:
		if rms > g.threshold {
			g.state = GateAttack
		}
	case GateAttack:
		g.envelope += g.attackStep * float64(n)
		if g.envelope >= 1.0 {
			g.envelope = 1.0
			g.state = GateOpen
		}
	case GateOpen:
		if rms < g.hysteresis {
			g.holdCounter = g.holdSamples
			g.state = GateHold
		}
	case GateHold:
		g.holdCounter -= n
		if g.holdCounter <= 0 {
			g.state = GateRelease
		}
		if rms > g.threshold {
			g.state = GateOpen
		}
	case GateRelease:
		g.envelope -= g.releaseStep * float64(n)
		if g.envelope <= 0 {
			g.envelope = 0
			g.state = GateClosed
		}
		if rms > g.threshold {
			g.state = GateAttack
		}
	}

	if g.envelope < 1.0 {
		for i := 0; i+1 < len(pcm); i += 2 {
			s := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
			s = int16(float64(s) * g.envelope)
			binary.LittleEndian.PutUint16(pcm[i:i+2], uint16(s))
		}
	}
}
