package dsp

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/vdo/FRecorder/internal/config"
)

// Chain is the fixed-order per-chunk effect chain: gain boost, high-pass,
// low-pass, then noise gate. Setters may be called from any goroutine;
// Process belongs to the single goroutine driving the audio path, and
// configuration changes take effect at the next chunk boundary.
type Chain struct {
	sampleRate int

	gain        atomic.Int32
	hpfMode     atomic.Int32
	lpfMode     atomic.Int32
	gateEnabled atomic.Bool

	// Owned by the processing goroutine.
	hpf    *Biquad
	lpf    *Biquad
	curHPF HPFMode
	curLPF LPFMode
	gate   *Gate
}

// NewChain builds a chain with everything off at the given sample rate.
func NewChain(sampleRate int) *Chain {
	c := &Chain{sampleRate: sampleRate, gate: NewGate(sampleRate)}
	c.gate.SnapOpen()
	return c
}

// SetGain sets the gain boost level.
func (c *Chain) SetGain(l GainLevel) {
	c.gain.Store(int32(l))
}

// Gain returns the configured gain boost level.
func (c *Chain) Gain() GainLevel {
	return GainLevel(c.gain.Load())
}

// SetHPFMode selects the high-pass cutoff.
func (c *Chain) SetHPFMode(m HPFMode) {
	c.hpfMode.Store(int32(m))
}

// HPFMode returns the configured high-pass mode.
func (c *Chain) HPFMode() HPFMode {
	return HPFMode(c.hpfMode.Load())
}

// SetLPFMode selects the low-pass cutoff.
func (c *Chain) SetLPFMode(m LPFMode) {
	c.lpfMode.Store(int32(m))
}

// LPFMode returns the configured low-pass mode.
func (c *Chain) LPFMode() LPFMode {
	return LPFMode(c.lpfMode.Load())
}

// SetGateEnabled toggles the noise gate.
func (c *Chain) SetGateEnabled(enabled bool) {
	c.gateEnabled.Store(enabled)
}

// GateEnabled reports whether the noise gate is on.
func (c *Chain) GateEnabled() bool {
	return c.gateEnabled.Load()
}

// Reset clears all filter and gate state for a new session.
func (c *Chain) Reset() {
	if c.hpf != nil {
		c.hpf.Reset()
	}
	if c.lpf != nil {
		c.lpf.Reset()
	}
	if c.gateEnabled.Load() {
		c.gate.Reset()
	} else {
		c.gate.SnapOpen()
	}
}

// Gate exposes the gate for state inspection.
func (c *Chain) Gate() *Gate {
	return c.gate
}

// syncFilters rebuilds biquad sections when the configured mode changed
// since the last chunk. A rebuilt section starts from zeroed state.
func (c *Chain) syncFilters() {
	if m := HPFMode(c.hpfMode.Load()); m != c.curHPF {
		c.curHPF = m
		if fc, ok := m.Cutoff(); ok {
			c.hpf = NewBiquad(HighPass(fc, float64(c.sampleRate), config.ButterworthQ))
		} else {
			c.hpf = nil
		}
	}
	if m := LPFMode(c.lpfMode.Load()); m != c.curLPF {
		c.curLPF = m
		if fc, ok := m.Cutoff(); ok {
			c.lpf = NewBiquad(LowPass(fc, float64(c.sampleRate), config.ButterworthQ))
		} else {
			c.lpf = nil
		}
	}
}

// Process runs one chunk of interleaved 16-bit PCM through the chain in
// place and returns the amplitude value used for visualization.
func (c *Chain) Process(pcm []byte) int {
	c.syncFilters()

	g := GainLevel(c.gain.Load()).Multiplier()
	var sum int64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))

		if g > 1.0 {
			s = clampInt16(int64(float64(s) * g))
		}
		if c.hpf != nil {
			s = c.hpf.ProcessInt16(s)
		}
		if c.lpf != nil {
			s = c.lpf.ProcessInt16(s)
		}

		binary.LittleEndian.PutUint16(pcm[i:i+2], uint16(s))
		if s >= 0 {
			sum += int64(s)
		} else {
			sum -= int64(s)
		}
	}

	div := len(pcm) / 16
	if div < 1 {
		div = 1
	}
	amplitude := int(sum / int64(div))

	if c.gateEnabled.Load() {
		c.gate.Process(pcm)
	} else if c.gate.Envelope() < 1.0 {
		c.gate.SnapOpen()
	}

	return amplitude
}
