// Package app wires the recording core into one application context: the
// device registry, the capture engine, and the monitor. The original
// design used process-wide singletons; here they are plain values owned
// by the App so a host embeds exactly one and tests build as many as
// they like.
package app

import (
	"github.com/rs/zerolog"

	"github.com/vdo/FRecorder/internal/audio"
	"github.com/vdo/FRecorder/internal/config"
	"github.com/vdo/FRecorder/internal/dsp"
	"github.com/vdo/FRecorder/internal/monitor"
	"github.com/vdo/FRecorder/internal/record"
)

// Config wires an App.
type Config struct {
	Host       audio.Host
	Logger     zerolog.Logger
	Dispatcher record.Dispatcher
	Callback   record.Callback
}

// App is the host-facing entry point to the recording core.
type App struct {
	host     audio.Host
	log      zerolog.Logger
	registry *audio.Registry
	monitor  *monitor.Monitor
	engine   *record.Engine
}

// New builds the application context on the given host.
func New(cfg Config) *App {
	mon := monitor.New(cfg.Host, cfg.Logger)
	return &App{
		host:     cfg.Host,
		log:      cfg.Logger,
		registry: audio.NewRegistry(cfg.Host, cfg.Logger),
		monitor:  mon,
		engine: record.New(record.Config{
			Host:       cfg.Host,
			Monitor:    mon,
			Logger:     cfg.Logger,
			Dispatcher: cfg.Dispatcher,
			Callback:   cfg.Callback,
		}),
	}
}

// Registry exposes the device registry.
func (a *App) Registry() *audio.Registry {
	return a.registry
}

// Monitor exposes the monitor sink.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Engine exposes the capture engine.
func (a *App) Engine() *record.Engine {
	return a.engine
}

// StartRecording begins a capture session. The output file must already
// exist as a writable zero-length file.
func (a *App) StartRecording(outputPath string, channels, sampleRate int, inputDeviceID string, gain dsp.GainLevel) error {
	return a.engine.Start(record.Session{
		OutputPath:    outputPath,
		Format:        config.Format{SampleRate: sampleRate, Channels: channels},
		InputDeviceID: inputDeviceID,
		Gain:          gain,
	})
}

// PauseRecording pauses the active session, if any.
func (a *App) PauseRecording() {
	a.engine.Pause()
}

// ResumeRecording resumes a paused session, if any.
func (a *App) ResumeRecording() {
	a.engine.Resume()
}

// StopRecording stops and finalizes the active session, if any.
func (a *App) StopRecording() {
	a.engine.Stop()
}

// IsRecording reports whether a session is active.
func (a *App) IsRecording() bool {
	return a.engine.IsRecording()
}

// IsPaused reports whether the session is paused.
func (a *App) IsPaused() bool {
	return a.engine.IsPaused()
}

// SetMonitoringEnabled toggles live monitoring.
func (a *App) SetMonitoringEnabled(enabled bool) {
	a.engine.SetMonitoringEnabled(enabled)
}

// StartStandaloneMonitoring loops the input device to the playback route
// while no capture is active.
func (a *App) StartStandaloneMonitoring(channels, sampleRate int, inputDeviceID string) error {
	return a.monitor.StartStandalone(config.Format{SampleRate: sampleRate, Channels: channels}, inputDeviceID)
}

// StopStandaloneMonitoring releases the standalone loop and its device.
func (a *App) StopStandaloneMonitoring() {
	a.monitor.StopStandalone()
}

// SetHPFMode configures the high-pass filter on both the capture path
// and the standalone monitor path.
func (a *App) SetHPFMode(m dsp.HPFMode) {
	a.engine.SetHPFMode(m)
	a.monitor.SetHPFMode(m)
}

// SetLPFMode configures the low-pass filter on both paths.
func (a *App) SetLPFMode(m dsp.LPFMode) {
	a.engine.SetLPFMode(m)
	a.monitor.SetLPFMode(m)
}

// SetGainBoostLevel configures the gain boost on both paths.
func (a *App) SetGainBoostLevel(l dsp.GainLevel) {
	a.engine.SetGainBoostLevel(l)
	a.monitor.SetGainBoostLevel(l)
}

// SetNoiseGateEnabled toggles the gate on both paths.
func (a *App) SetNoiseGateEnabled(enabled bool) {
	a.engine.SetNoiseGateEnabled(enabled)
	a.monitor.SetNoiseGateEnabled(enabled)
}

// SetNoiseReductionEnabled arms the post-stop reduction pass.
func (a *App) SetNoiseReductionEnabled(enabled bool) {
	a.engine.SetNoiseReductionEnabled(enabled)
}

// SetReduction replaces the noise reduction parameters.
func (a *App) SetReduction(r config.Reduction) error {
	return a.engine.SetReduction(r)
}

// ListInputDevices returns the available external input devices.
func (a *App) ListInputDevices() ([]audio.Device, error) {
	return a.registry.ListInputs()
}

// HasFeedbackRisk reports whether enabling monitoring for the given
// input could feed the speaker back into the microphone.
func (a *App) HasFeedbackRisk(inputDeviceID string) bool {
	input, err := a.registry.GetInputByID(inputDeviceID)
	if err != nil {
		return false
	}
	outputs, err := a.registry.ListOutputs()
	if err != nil {
		return false
	}
	return audio.HasFeedbackRisk(input, outputs)
}

// Shutdown stops any active session and releases every device.
func (a *App) Shutdown() {
	if a.engine.IsRecording() {
		a.engine.Stop()
	}
	a.monitor.Release()
	a.registry.Stop()
}
