package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vdo/FRecorder/internal/audio"
	"github.com/vdo/FRecorder/internal/audio/audiotest"
	"github.com/vdo/FRecorder/internal/dsp"
)

func newTestApp(host *audiotest.Host) *App {
	return New(Config{
		Host:   host,
		Logger: zerolog.Nop(),
	})
}

func TestSettersReachBothPaths(t *testing.T) {
	host := audiotest.NewHost()
	a := newTestApp(host)

	a.SetHPFMode(dsp.HPF120)
	a.SetLPFMode(dsp.LPF9500)
	a.SetGainBoostLevel(dsp.GainBoost12dB)
	a.SetNoiseGateEnabled(true)

	if a.Engine().HPFMode() != dsp.HPF120 {
		t.Error("engine HPF mode not set")
	}
	if a.Engine().LPFMode() != dsp.LPF9500 {
		t.Error("engine LPF mode not set")
	}
	if a.Engine().GainBoostLevel() != dsp.GainBoost12dB {
		t.Error("engine gain not set")
	}
	if !a.Engine().IsNoiseGateEnabled() {
		t.Error("engine gate not enabled")
	}

	chain := a.Monitor().Chain()
	if chain.HPFMode() != dsp.HPF120 || chain.LPFMode() != dsp.LPF9500 {
		t.Error("monitor chain filter modes not set")
	}
	if chain.Gain() != dsp.GainBoost12dB || !chain.GateEnabled() {
		t.Error("monitor chain gain/gate not set")
	}
}

func TestHasFeedbackRisk(t *testing.T) {
	host := audiotest.NewHost()
	host.SetInputDevices(audio.Device{ID: "usb", Kind: audio.KindUSB, Name: "USB Mic"})
	host.SetOutputDevices(audio.Device{ID: "speaker", Kind: audio.KindBuiltinSpeaker, Name: "Speaker"})
	a := newTestApp(host)

	if !a.HasFeedbackRisk(audio.DefaultInputID) {
		t.Error("built-in mic with speaker-only output should risk feedback")
	}
	if a.HasFeedbackRisk("usb") {
		t.Error("external input should never risk feedback")
	}

	host.SetOutputDevices(
		audio.Device{ID: "speaker", Kind: audio.KindBuiltinSpeaker, Name: "Speaker"},
		audio.Device{ID: "bt", Kind: audio.KindBluetoothA2DP, Name: "Headphones"},
	)
	if a.HasFeedbackRisk(audio.DefaultInputID) {
		t.Error("isolated output available: no feedback risk")
	}
}

func TestListInputDevices(t *testing.T) {
	host := audiotest.NewHost()
	host.SetInputDevices(
		audio.Device{ID: "builtin", Kind: audio.KindBuiltinMic, Name: "Internal"},
		audio.Device{ID: "usb", Kind: audio.KindUSB, Name: "USB Mic"},
	)
	a := newTestApp(host)

	devices, err := a.ListInputDevices()
	if err != nil {
		t.Fatalf("ListInputDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "usb" {
		t.Fatalf("got %v, want only the external device", devices)
	}
}

func TestRecordingLifecycleThroughApp(t *testing.T) {
	host := audiotest.NewHost()
	host.SetSilence(true)
	host.SetReadDelay(time.Millisecond)
	a := newTestApp(host)

	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.StartRecording(path, 1, 44100, audio.DefaultInputID, dsp.GainOff); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if !a.IsRecording() {
		t.Fatal("not recording")
	}

	a.PauseRecording()
	if !a.IsPaused() {
		t.Fatal("not paused")
	}
	a.ResumeRecording()
	if a.IsPaused() {
		t.Fatal("still paused after resume")
	}

	a.StopRecording()
	for i := 0; i < 200 && a.IsRecording(); i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if a.IsRecording() {
		t.Fatal("still recording after stop")
	}
}

func TestStandaloneMonitoringThroughApp(t *testing.T) {
	host := audiotest.NewHost()
	host.SetSilence(true)
	host.SetReadDelay(time.Millisecond)
	a := newTestApp(host)

	if err := a.StartStandaloneMonitoring(1, 44100, audio.DefaultInputID); err != nil {
		t.Fatalf("StartStandaloneMonitoring: %v", err)
	}
	if !a.Monitor().IsStandalone() {
		t.Fatal("standalone not active")
	}
	a.StopStandaloneMonitoring()
	if a.Monitor().IsStandalone() {
		t.Fatal("standalone still active")
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	host := audiotest.NewHost()
	host.SetSilence(true)
	host.SetReadDelay(time.Millisecond)
	a := newTestApp(host)

	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.StartRecording(path, 1, 44100, audio.DefaultInputID, dsp.GainOff); err != nil {
		t.Fatal(err)
	}

	a.Shutdown()
	if a.IsRecording() {
		t.Fatal("still recording after shutdown")
	}
	if a.Monitor().IsMonitoring() {
		t.Fatal("monitor still running after shutdown")
	}
}
