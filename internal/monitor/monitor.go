// Package monitor implements live loopback: a playback sink fed with
// post-effect PCM during capture, and a standalone input->output loop
// for monitoring outside a capture session. The input device is
// exclusive, so the capture engine and the standalone loop hand it back
// and forth; see the hand-off rules on StartStandalone/StopStandalone.
package monitor

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vdo/FRecorder/internal/audio"
	"github.com/vdo/FRecorder/internal/config"
	"github.com/vdo/FRecorder/internal/dsp"
)

// ringBuffers is how many device buffers the feed ring holds before
// overflow drops begin.
const ringBuffers = 4

// Monitor owns the output device and, in standalone mode, an input
// device of its own. Feed is called synchronously from whichever thread
// drives the audio path and never blocks it.
type Monitor struct {
	host audio.Host
	log  zerolog.Logger

	monitoring atomic.Bool
	standalone atomic.Bool
	paused     atomic.Bool
	volume     atomic.Uint64

	feedCount  atomic.Int64
	writeCount atomic.Int64

	mu     sync.Mutex
	format config.Format
	chain  *dsp.Chain
	out    audio.Output
	ring   *byteRing
	wrDone chan struct{}

	// Sticky effect settings for the standalone path; they survive
	// re-initialization between sessions.
	gain        dsp.GainLevel
	hpfMode     dsp.HPFMode
	lpfMode     dsp.LPFMode
	gateEnabled bool

	saIn   audio.Input
	saStop chan struct{}
	saDone chan struct{}
}

// New creates a monitor on the given host.
func New(host audio.Host, log zerolog.Logger) *Monitor {
	m := &Monitor{host: host, log: log}
	m.volume.Store(math.Float64bits(1.0))
	return m
}

// Initialize sets the playback format for the next Start and rebuilds
// the standalone effect chain with fresh state. Sticky mode settings
// carry over.
func (m *Monitor) Initialize(format config.Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format = format
	m.chain = dsp.NewChain(format.SampleRate)
	m.applySettingsLocked()
	m.log.Debug().
		Int("sampleRate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("monitor initialized")
}

func (m *Monitor) applySettingsLocked() {
	m.chain.SetGain(m.gain)
	m.chain.SetHPFMode(m.hpfMode)
	m.chain.SetLPFMode(m.lpfMode)
	m.chain.SetGateEnabled(m.gateEnabled)
	m.chain.Reset()
}

// SetGainBoostLevel configures the standalone-path gain boost.
func (m *Monitor) SetGainBoostLevel(l dsp.GainLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain = l
	if m.chain != nil {
		m.chain.SetGain(l)
	}
}

// SetHPFMode configures the standalone-path high-pass filter.
func (m *Monitor) SetHPFMode(mode dsp.HPFMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hpfMode = mode
	if m.chain != nil {
		m.chain.SetHPFMode(mode)
	}
}

// SetLPFMode configures the standalone-path low-pass filter.
func (m *Monitor) SetLPFMode(mode dsp.LPFMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lpfMode = mode
	if m.chain != nil {
		m.chain.SetLPFMode(mode)
	}
}

// SetNoiseGateEnabled toggles the standalone-path noise gate.
func (m *Monitor) SetNoiseGateEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateEnabled = enabled
	if m.chain != nil {
		m.chain.SetGateEnabled(enabled)
	}
}

// Chain returns the standalone-path effect chain. It is applied only in
// standalone mode; during capture the engine has already processed the
// chunk before feeding it.
func (m *Monitor) Chain() *dsp.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chain == nil {
		m.chain = dsp.NewChain(config.SampleRate44100)
		m.applySettingsLocked()
	}
	return m.chain
}

// Start opens the preferred playback route and begins draining the feed
// ring. excludeInputID is the active capture device, never used as the
// monitoring output.
func (m *Monitor) Start(excludeInputID string) error {
	if m.monitoring.Load() {
		m.log.Warn().Msg("monitor already running")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	outputs, err := m.host.Outputs()
	if err != nil {
		return fmt.Errorf("monitor: enumerate outputs: %w", err)
	}
	route := audio.PreferredMonitorOutput(outputs, excludeInputID)
	routeID := audio.DefaultInputID
	if route != nil {
		routeID = route.ID
	}

	out, err := m.host.OpenOutput(routeID, m.format)
	if err != nil {
		return fmt.Errorf("monitor: open output: %w", err)
	}
	if err := out.Start(); err != nil {
		out.Close()
		return fmt.Errorf("monitor: start output: %w", err)
	}

	m.out = out
	m.ring = newByteRing(out.BufferSize() * ringBuffers)
	m.wrDone = make(chan struct{})
	m.feedCount.Store(0)
	m.writeCount.Store(0)
	m.paused.Store(false)
	m.monitoring.Store(true)

	go m.drain(out, m.ring, m.wrDone)

	m.log.Debug().
		Str("route", routeID).
		Int("bufferSize", out.BufferSize()).
		Msg("monitor started")
	return nil
}

// drain pulls buffered PCM and writes it to the device at its own pace.
// When the ring is empty it simply waits; the device underflows
// naturally rather than being fed synthesized silence.
func (m *Monitor) drain(out audio.Output, ring *byteRing, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, out.BufferSize())
	for {
		n := ring.Read(buf)
		if n == 0 {
			return
		}
		m.applyVolume(buf[:n])
		for off := 0; off < n; {
			w, err := out.Write(buf[off:n])
			if err != nil {
				m.log.Error().Err(err).Msg("monitor output write failed")
				return
			}
			if w <= 0 {
				break
			}
			m.writeCount.Add(1)
			off += w
		}
	}
}

func (m *Monitor) applyVolume(pcm []byte) {
	v := math.Float64frombits(m.volume.Load())
	if v >= 1.0 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		binary.LittleEndian.PutUint16(pcm[i:i+2], uint16(int16(float64(s)*v)))
	}
}

// Stop tears the sink down.
func (m *Monitor) Stop() {
	if !m.monitoring.Swap(false) {
		return
	}
	m.paused.Store(false)

	m.mu.Lock()
	ring, done, out := m.ring, m.wrDone, m.out
	m.ring, m.wrDone, m.out = nil, nil, nil
	m.mu.Unlock()

	if ring != nil {
		ring.Close()
	}
	if done != nil {
		<-done
	}
	if out != nil {
		out.Stop()
		out.Close()
	}
	m.log.Debug().
		Int64("feeds", m.feedCount.Load()).
		Int64("writes", m.writeCount.Load()).
		Msg("monitor stopped")
}

// Pause mutes the sink without tearing it down.
func (m *Monitor) Pause() {
	if m.monitoring.Load() {
		m.paused.Store(true)
	}
}

// Resume reverses Pause.
func (m *Monitor) Resume() {
	if m.monitoring.Load() {
		m.paused.Store(false)
	}
}

// Feed hands one chunk of post-effect PCM to the sink. Non-blocking:
// whatever does not fit in the bounded ring is dropped. In standalone
// mode the chunk is run through the monitor's own effect chain first.
func (m *Monitor) Feed(chunk []byte) {
	if !m.monitoring.Load() || m.paused.Load() || len(chunk) == 0 {
		return
	}

	m.mu.Lock()
	ring, chain := m.ring, m.chain
	m.mu.Unlock()
	if ring == nil {
		return
	}

	if m.standalone.Load() && chain != nil {
		chain.Process(chunk)
	}

	m.feedCount.Add(1)
	accepted := ring.Write(chunk)
	if accepted < len(chunk) {
		m.log.Debug().
			Int("dropped", len(chunk)-accepted).
			Msg("monitor ring full, dropping excess")
	}
}

// SetVolume clamps v to [0, 1] and applies it as a PCM scale.
func (m *Monitor) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.volume.Store(math.Float64bits(v))
}

// Volume returns the current playback volume.
func (m *Monitor) Volume() float64 {
	return math.Float64frombits(m.volume.Load())
}

// IsMonitoring reports whether the sink is running.
func (m *Monitor) IsMonitoring() bool {
	return m.monitoring.Load()
}

// IsStandalone reports whether the standalone loop owns the input.
func (m *Monitor) IsStandalone() bool {
	return m.standalone.Load()
}

// IsPaused reports whether the sink is paused.
func (m *Monitor) IsPaused() bool {
	return m.paused.Load()
}

// StartStandalone acquires an input device and loops it to the sink with
// the monitor's own effect chain. The capture engine must not hold the
// input: callers stop capture (or are in the paused hand-off) first, and
// capture start/resume must call StopStandalone before re-acquiring.
func (m *Monitor) StartStandalone(format config.Format, inputDeviceID string) error {
	if m.monitoring.Load() {
		m.log.Warn().Msg("standalone requested while already monitoring")
		return nil
	}

	m.Initialize(format)
	if err := m.Start(inputDeviceID); err != nil {
		return err
	}

	in, err := m.host.OpenInput(inputDeviceID, format)
	if err != nil {
		m.Stop()
		return fmt.Errorf("monitor: open standalone input: %w", err)
	}
	if err := in.Start(); err != nil {
		in.Close()
		m.Stop()
		return fmt.Errorf("monitor: start standalone input: %w", err)
	}

	m.mu.Lock()
	m.saIn = in
	m.saStop = make(chan struct{})
	m.saDone = make(chan struct{})
	stop, done := m.saStop, m.saDone
	m.mu.Unlock()
	m.standalone.Store(true)

	go m.standaloneLoop(in, stop, done)

	m.log.Debug().
		Str("input", inputDeviceID).
		Msg("standalone monitoring started")
	return nil
}

func (m *Monitor) standaloneLoop(in audio.Input, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, in.BufferSize())
	for {
		select {
		case <-stop:
			return
		default:
		}
		if m.paused.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		n, err := in.Read(buf)
		if err != nil {
			select {
			case <-stop:
			default:
				m.log.Error().Err(err).Msg("standalone input read failed")
			}
			return
		}
		if n > 0 {
			chunk := make([]byte, n&^1)
			copy(chunk, buf[:len(chunk)])
			m.Feed(chunk)
		}
	}
}

// StopStandalone releases the standalone input and stops the sink. The
// capture engine calls this before acquiring the input device.
func (m *Monitor) StopStandalone() {
	if !m.standalone.Swap(false) {
		return
	}

	m.mu.Lock()
	in, stop, done := m.saIn, m.saStop, m.saDone
	m.saIn, m.saStop, m.saDone = nil, nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if in != nil {
		// Unblocks a pending Read so the loop can observe stop.
		in.Stop()
	}
	if done != nil {
		<-done
	}
	if in != nil {
		in.Close()
	}
	m.Stop()
	m.log.Debug().Msg("standalone monitoring stopped")
}

// Release stops everything; used on application shutdown.
func (m *Monitor) Release() {
	m.StopStandalone()
	m.Stop()
}

// DebugStatus summarizes sink state for host diagnostics.
func (m *Monitor) DebugStatus() string {
	m.mu.Lock()
	format := m.format
	m.mu.Unlock()
	return fmt.Sprintf("mon=%t standalone=%t paused=%t sr=%d ch=%d f=%d w=%d",
		m.monitoring.Load(), m.standalone.Load(), m.paused.Load(),
		format.SampleRate, format.Channels,
		m.feedCount.Load(), m.writeCount.Load())
}

// FeedCount returns how many chunks have been fed since Start.
func (m *Monitor) FeedCount() int64 {
	return m.feedCount.Load()
}

// WriteCount returns how many device writes have completed since Start.
func (m *Monitor) WriteCount() int64 {
	return m.writeCount.Load()
}
