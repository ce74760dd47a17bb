// Package record implements the capture engine: it owns the input
// device, runs the effect chain over every chunk, persists the result to
// a WAV file, optionally fans post-effect audio to the monitor sink, and
// runs the offline noise reduction pass after capture completes.
package record

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vdo/FRecorder/internal/audio"
	"github.com/vdo/FRecorder/internal/config"
	"github.com/vdo/FRecorder/internal/dsp"
	"github.com/vdo/FRecorder/internal/monitor"
	"github.com/vdo/FRecorder/internal/noise"
	"github.com/vdo/FRecorder/internal/wav"
)

// State is the capture session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateFinalizing
)

// stopJoinTimeout bounds how long Stop waits for the capture worker
// before finalizing the file anyway.
const stopJoinTimeout = 5 * time.Second

var (
	// ErrInvalidOutputFile indicates the output path cannot be opened.
	ErrInvalidOutputFile = errors.New("record: invalid output file")

	// ErrRecorderInit indicates the input device cannot be acquired at
	// the requested format.
	ErrRecorderInit = errors.New("record: recorder init failed")

	// ErrRecording indicates an I/O failure mid-session; the session is
	// stopped and the file finalized best-effort.
	ErrRecording = errors.New("record: recording error")
)

// Callback is the host-facing observer surface. Every call is delivered
// through the engine's dispatcher.
type Callback interface {
	OnStartRecord(path string)
	OnPauseRecord()
	OnResumeRecord()
	OnStopRecord(finalPath string)
	OnRecordProgress(durationMs int64, amplitude int)
	OnError(err error)
}

// NoiseReductionListener observes the post-stop reduction pass.
type NoiseReductionListener interface {
	OnNoiseReductionStart()
	OnNoiseReductionProgress(percent int)
	OnNoiseReductionEnd(success bool)
}

// Dispatcher marshals callbacks onto the host's foreground executor. The
// core never knows about UI threads; the host injects this.
type Dispatcher func(func())

// Session describes one capture run.
type Session struct {
	OutputPath    string
	Format        config.Format
	InputDeviceID string
	Gain          dsp.GainLevel
}

// Config wires an Engine.
type Config struct {
	Host       audio.Host
	Monitor    *monitor.Monitor
	Logger     zerolog.Logger
	Dispatcher Dispatcher
	Callback   Callback
}

// Engine drives capture sessions. Lifecycle methods are safe to call
// from any goroutine; they are serialized by an internal mutex and
// observed by the worker at chunk boundaries.
type Engine struct {
	host     audio.Host
	monitor  *monitor.Monitor
	log      zerolog.Logger
	dispatch Dispatcher

	state         atomic.Int32
	paused        atomic.Bool
	durationMs    atomic.Int64
	lastAmplitude atomic.Int64

	monitoringEnabled atomic.Bool
	nrEnabled         atomic.Bool

	gainLevel   atomic.Int32
	hpfMode     atomic.Int32
	lpfMode     atomic.Int32
	gateEnabled atomic.Bool

	cbMu       sync.Mutex
	cb         Callback
	nrListener NoiseReductionListener

	mu           sync.Mutex
	reduction    config.Reduction
	session      Session
	in           audio.Input
	writer       *wav.Writer
	chain        *dsp.Chain
	stopCh       chan struct{}
	workerDone   chan struct{}
	progressStop chan struct{}
	progressDone chan struct{}
}

// New builds an engine. A nil Dispatcher runs callbacks inline.
func New(cfg Config) *Engine {
	dispatch := cfg.Dispatcher
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Engine{
		host:      cfg.Host,
		monitor:   cfg.Monitor,
		log:       cfg.Logger,
		dispatch:  dispatch,
		cb:        cfg.Callback,
		reduction: config.DefaultReduction(),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsRecording reports whether a session is active (running or paused).
func (e *Engine) IsRecording() bool {
	s := e.State()
	return s == StateRunning || s == StatePaused
}

// IsPaused reports whether the session is paused.
func (e *Engine) IsPaused() bool {
	return e.State() == StatePaused
}

// SetCallback replaces the host observer.
func (e *Engine) SetCallback(cb Callback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.cb = cb
}

// SetNoiseReductionListener replaces the reduction observer.
func (e *Engine) SetNoiseReductionListener(l NoiseReductionListener) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.nrListener = l
}

func (e *Engine) emit(fn func(Callback)) {
	e.cbMu.Lock()
	cb := e.cb
	e.cbMu.Unlock()
	if cb == nil {
		return
	}
	e.dispatch(func() { fn(cb) })
}

// Start acquires the device and begins capture: Idle -> Running.
func (e *Engine) Start(session Session) error {
	if err := config.ValidateFormat(session.Format); err != nil {
		return fmt.Errorf("record: invalid format: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StateIdle {
		return fmt.Errorf("record: start while not idle")
	}

	// The input device is exclusive: standalone monitoring must release
	// it before capture can acquire it.
	if e.monitor != nil && e.monitor.IsStandalone() {
		e.monitor.StopStandalone()
	}

	writer, err := wav.NewWriter(session.OutputPath, session.Format)
	if err != nil {
		e.log.Error().Err(err).Str("path", session.OutputPath).Msg("cannot open output file")
		wrapped := fmt.Errorf("%w: %v", ErrInvalidOutputFile, err)
		e.emit(func(cb Callback) { cb.OnError(wrapped) })
		return wrapped
	}

	in, err := e.host.OpenInput(session.InputDeviceID, session.Format)
	if err == nil {
		if startErr := in.Start(); startErr != nil {
			in.Close()
			err = startErr
		}
	}
	if err != nil {
		writer.Close()
		e.log.Error().Err(err).Msg("cannot acquire input device")
		wrapped := fmt.Errorf("%w: %v", ErrRecorderInit, err)
		e.emit(func(cb Callback) { cb.OnError(wrapped) })
		return wrapped
	}

	chain := dsp.NewChain(session.Format.SampleRate)
	chain.SetGain(session.Gain)
	chain.SetHPFMode(dsp.HPFMode(e.hpfMode.Load()))
	chain.SetLPFMode(dsp.LPFMode(e.lpfMode.Load()))
	chain.SetGateEnabled(e.gateEnabled.Load())
	chain.Reset()
	e.gainLevel.Store(int32(session.Gain))

	e.session = session
	e.in = in
	e.writer = writer
	e.chain = chain
	e.stopCh = make(chan struct{})
	e.workerDone = make(chan struct{})
	e.progressStop = make(chan struct{})
	e.progressDone = make(chan struct{})
	e.durationMs.Store(0)
	e.lastAmplitude.Store(0)
	e.paused.Store(false)
	e.state.Store(int32(StateRunning))

	if e.monitor != nil && e.monitoringEnabled.Load() {
		e.monitor.Initialize(session.Format)
		if err := e.monitor.Start(session.InputDeviceID); err != nil {
			e.log.Warn().Err(err).Msg("monitor failed to start; capture continues")
		}
	}

	go e.captureWorker(writer, chain, e.stopCh, e.workerDone)
	go e.progressLoop(e.progressStop, e.progressDone)

	e.log.Info().
		Str("path", session.OutputPath).
		Int("sampleRate", session.Format.SampleRate).
		Int("channels", session.Format.Channels).
		Msg("recording started")
	e.emit(func(cb Callback) { cb.OnStartRecord(session.OutputPath) })
	return nil
}

func (e *Engine) currentInput() audio.Input {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.in
}

// captureWorker is the dedicated capture thread. It observes chunks in
// strict time order; pause/stop take effect at chunk boundaries. The
// input handle is re-fetched every iteration because pause may release
// the device and resume may acquire a fresh one.
func (e *Engine) captureWorker(writer *wav.Writer, chain *dsp.Chain, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	var cur audio.Input
	var buf []byte
	for {
		select {
		case <-stop:
			return
		default:
		}
		if e.paused.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		in := e.currentInput()
		if in == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if in != cur {
			cur = in
			buf = make([]byte, in.BufferSize())
		}

		n, err := in.Read(buf)
		if err != nil {
			switch State(e.state.Load()) {
			case StateRunning:
				// Device gone mid-capture (hot-unplug) or transient
				// read failure: surface and stop cleanly.
				e.log.Error().Err(err).Msg("input read failed")
				wrapped := fmt.Errorf("%w: %v", ErrRecording, err)
				e.emit(func(cb Callback) { cb.OnError(wrapped) })
				go e.Stop()
				return
			case StatePaused:
				// Read interrupted by the pause hand-off.
				continue
			default:
				return
			}
		}
		if n <= 0 {
			continue
		}
		n &^= 1 // whole 16-bit samples only

		chunk := buf[:n]
		amplitude := chain.Process(chunk)
		e.lastAmplitude.Store(int64(amplitude))

		if e.monitor != nil && e.monitoringEnabled.Load() && e.monitor.IsMonitoring() {
			// Copy so the sink can never mutate the writer buffer.
			cp := make([]byte, n)
			copy(cp, chunk)
			e.monitor.Feed(cp)
		}

		if _, err := writer.Write(chunk); err != nil {
			e.log.Error().Err(err).Msg("wav write failed")
			wrapped := fmt.Errorf("%w: %v", ErrRecording, err)
			e.emit(func(cb Callback) { cb.OnError(wrapped) })
			go e.Stop()
			return
		}
	}
}

// progressLoop advances duration and emits progress. Duration advances
// only here, at tick boundaries, so pause/resume can never double-count.
func (e *Engine) progressLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(config.RecordingVisualizationIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if State(e.state.Load()) != StateRunning || e.paused.Load() {
				continue
			}
			d := e.durationMs.Add(config.RecordingVisualizationIntervalMs)
			amp := int(e.lastAmplitude.Load())
			e.emit(func(cb Callback) { cb.OnRecordProgress(d, amp) })
		}
	}
}

// Pause stops device reads, keeping the WAV file and effect state:
// Running -> Paused. With monitoring enabled the input device is
// released and the monitor takes it over in standalone mode so the user
// keeps hearing audio.
func (e *Engine) Pause() {
	e.mu.Lock()

	if State(e.state.Load()) != StateRunning {
		e.mu.Unlock()
		return
	}
	e.paused.Store(true)
	e.state.Store(int32(StatePaused))

	if e.in != nil {
		e.in.Stop()
	}

	if e.monitor != nil && e.monitoringEnabled.Load() {
		if e.monitor.IsMonitoring() {
			e.monitor.Stop()
		}
		// Release the device so the standalone loop can acquire it.
		if e.in != nil {
			e.in.Close()
			e.in = nil
		}
		format, inputID := e.session.Format, e.session.InputDeviceID
		e.mu.Unlock()
		if err := e.monitor.StartStandalone(format, inputID); err != nil {
			e.log.Warn().Err(err).Msg("standalone monitor failed to start on pause")
		}
	} else {
		e.mu.Unlock()
	}

	e.log.Info().Msg("recording paused")
	e.emit(func(cb Callback) { cb.OnPauseRecord() })
}

// Resume re-acquires the device: Paused -> Running. Standalone
// monitoring is stopped first; the input device is exclusive.
func (e *Engine) Resume() {
	if State(e.state.Load()) != StatePaused {
		return
	}

	if e.monitor != nil && e.monitor.IsStandalone() {
		e.monitor.StopStandalone()
	}

	e.mu.Lock()
	if State(e.state.Load()) != StatePaused {
		e.mu.Unlock()
		return
	}

	if e.in == nil {
		in, err := e.host.OpenInput(e.session.InputDeviceID, e.session.Format)
		if err != nil {
			e.mu.Unlock()
			wrapped := fmt.Errorf("%w: %v", ErrRecorderInit, err)
			e.emit(func(cb Callback) { cb.OnError(wrapped) })
			return
		}
		e.in = in
	}
	if err := e.in.Start(); err != nil {
		e.mu.Unlock()
		wrapped := fmt.Errorf("%w: %v", ErrRecorderInit, err)
		e.emit(func(cb Callback) { cb.OnError(wrapped) })
		return
	}

	format, inputID := e.session.Format, e.session.InputDeviceID
	e.state.Store(int32(StateRunning))
	e.paused.Store(false)
	e.mu.Unlock()

	if e.monitor != nil && e.monitoringEnabled.Load() && !e.monitor.IsMonitoring() {
		e.monitor.Initialize(format)
		if err := e.monitor.Start(inputID); err != nil {
			e.log.Warn().Err(err).Msg("monitor failed to restart on resume")
		}
	}

	e.log.Info().Msg("recording resumed")
	e.emit(func(cb Callback) { cb.OnResumeRecord() })
}

// Stop ends the session: Running/Paused -> Stopping -> Finalizing ->
// Idle. The worker is joined with a bounded timeout, the tail transient
// is trimmed, the header finalized, and the optional noise reduction
// pass runs before OnStopRecord fires exactly once.
func (e *Engine) Stop() {
	e.mu.Lock()

	s := State(e.state.Load())
	if s != StateRunning && s != StatePaused {
		e.mu.Unlock()
		return
	}
	e.state.Store(int32(StateStopping))

	close(e.stopCh)
	if e.in != nil {
		// Interrupt a blocking read so the worker can observe stop.
		e.in.Stop()
	}

	workerDone := e.workerDone
	progressStop, progressDone := e.progressStop, e.progressDone
	in, writer := e.in, e.writer
	session := e.session
	e.in, e.writer, e.chain = nil, nil, nil
	e.mu.Unlock()

	select {
	case <-workerDone:
	case <-time.After(stopJoinTimeout):
		e.log.Warn().Msg("capture worker join timed out; finalizing anyway")
	}
	close(progressStop)
	<-progressDone

	if in != nil {
		in.Close()
	}

	if e.monitor != nil && e.monitor.IsMonitoring() && !e.monitor.IsStandalone() {
		e.monitor.Stop()
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			e.log.Error().Err(err).Msg("wav close failed")
		}
		if err := wav.TrimTail(session.OutputPath, session.Format); err != nil {
			e.log.Error().Err(err).Msg("tail trim failed")
		}
		if err := wav.FinalizeHeader(session.OutputPath, session.Format); err != nil {
			e.log.Error().Err(err).Msg("header finalize failed")
		}
	}

	e.state.Store(int32(StateFinalizing))

	// Device is released; monitoring can continue standalone.
	if e.monitor != nil && e.monitoringEnabled.Load() && !e.monitor.IsMonitoring() {
		if err := e.monitor.StartStandalone(session.Format, session.InputDeviceID); err != nil {
			e.log.Warn().Err(err).Msg("standalone monitor failed to start after stop")
		}
	}

	if e.nrEnabled.Load() {
		e.runNoiseReduction(session.OutputPath)
	}

	e.durationMs.Store(0)
	e.paused.Store(false)
	e.state.Store(int32(StateIdle))
	e.log.Info().Str("path", session.OutputPath).Msg("recording stopped")
	e.emit(func(cb Callback) { cb.OnStopRecord(session.OutputPath) })
}

func (e *Engine) runNoiseReduction(path string) {
	e.cbMu.Lock()
	listener := e.nrListener
	e.cbMu.Unlock()
	e.mu.Lock()
	reduction := e.reduction
	e.mu.Unlock()

	if listener != nil {
		e.dispatch(func() { listener.OnNoiseReductionStart() })
	}
	var progress noise.ProgressFunc
	if listener != nil {
		progress = func(percent int) {
			e.dispatch(func() { listener.OnNoiseReductionProgress(percent) })
		}
	}
	err := noise.Process(path, reduction, progress, e.log)
	if err != nil {
		e.log.Error().Err(err).Msg("noise reduction failed")
	}
	if listener != nil {
		e.dispatch(func() { listener.OnNoiseReductionEnd(err == nil) })
	}
}

// SetMonitoringEnabled toggles live monitoring; callable in any state.
func (e *Engine) SetMonitoringEnabled(enabled bool) {
	e.monitoringEnabled.Store(enabled)
	if e.monitor == nil {
		return
	}
	e.mu.Lock()
	s := State(e.state.Load())
	format, inputID := e.session.Format, e.session.InputDeviceID
	e.mu.Unlock()

	if enabled && s == StateRunning && !e.monitor.IsMonitoring() {
		e.monitor.Initialize(format)
		if err := e.monitor.Start(inputID); err != nil {
			e.log.Warn().Err(err).Msg("monitor failed to start")
		}
	} else if !enabled && e.monitor.IsMonitoring() && !e.monitor.IsStandalone() {
		e.monitor.Stop()
	}
}

// IsMonitoringEnabled reports the monitoring flag.
func (e *Engine) IsMonitoringEnabled() bool {
	return e.monitoringEnabled.Load()
}

// SetGainBoostLevel changes the capture gain; takes effect at the next
// chunk boundary.
func (e *Engine) SetGainBoostLevel(l dsp.GainLevel) {
	e.gainLevel.Store(int32(l))
	e.forwardToChain(func(c *dsp.Chain) { c.SetGain(l) })
}

// GainBoostLevel reports the configured gain boost.
func (e *Engine) GainBoostLevel() dsp.GainLevel {
	return dsp.GainLevel(e.gainLevel.Load())
}

// SetHPFMode changes the high-pass mode; next chunk boundary.
func (e *Engine) SetHPFMode(m dsp.HPFMode) {
	e.hpfMode.Store(int32(m))
	e.forwardToChain(func(c *dsp.Chain) { c.SetHPFMode(m) })
}

// HPFMode reports the configured high-pass mode.
func (e *Engine) HPFMode() dsp.HPFMode {
	return dsp.HPFMode(e.hpfMode.Load())
}

// SetLPFMode changes the low-pass mode; next chunk boundary.
func (e *Engine) SetLPFMode(m dsp.LPFMode) {
	e.lpfMode.Store(int32(m))
	e.forwardToChain(func(c *dsp.Chain) { c.SetLPFMode(m) })
}

// LPFMode reports the configured low-pass mode.
func (e *Engine) LPFMode() dsp.LPFMode {
	return dsp.LPFMode(e.lpfMode.Load())
}

// SetNoiseGateEnabled toggles the gate; next chunk boundary.
func (e *Engine) SetNoiseGateEnabled(enabled bool) {
	e.gateEnabled.Store(enabled)
	e.forwardToChain(func(c *dsp.Chain) { c.SetGateEnabled(enabled) })
}

// IsNoiseGateEnabled reports the gate flag.
func (e *Engine) IsNoiseGateEnabled() bool {
	return e.gateEnabled.Load()
}

func (e *Engine) forwardToChain(apply func(*dsp.Chain)) {
	e.mu.Lock()
	chain := e.chain
	e.mu.Unlock()
	if chain != nil {
		apply(chain)
	}
}

// SetNoiseReductionEnabled arms the post-stop reduction pass.
func (e *Engine) SetNoiseReductionEnabled(enabled bool) {
	e.nrEnabled.Store(enabled)
}

// IsNoiseReductionEnabled reports the reduction flag.
func (e *Engine) IsNoiseReductionEnabled() bool {
	return e.nrEnabled.Load()
}

// SetReduction replaces the noise reduction parameters.
func (e *Engine) SetReduction(r config.Reduction) error {
	if err := config.ValidateReduction(r); err != nil {
		return err
	}
	e.mu.Lock()
	e.reduction = r
	e.mu.Unlock()
	return nil
}

// Reduction returns the configured noise reduction parameters.
func (e *Engine) Reduction() config.Reduction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reduction
}

// DurationMs returns the accumulated recorded duration.
func (e *Engine) DurationMs() int64 {
	return e.durationMs.Load()
}
