// Package audio models input/output devices and abstracts the sound
// host. Everything above this package talks to the Host interface, so
// the capture engine, monitor and registry are testable without a sound
// card; the PortAudio backend is the production implementation.
package audio

import (
	"github.com/vdo/FRecorder/internal/config"
)

// DefaultInputID selects the host's default microphone.
const DefaultInputID = ""

// DeviceKind classifies a device by its physical transport.
type DeviceKind int

const (
	KindUnknown DeviceKind = iota
	KindBuiltinMic
	KindBuiltinSpeaker
	KindUSB
	KindUSBHeadset
	KindUSBAccessory
	KindWiredHeadset
	KindWiredHeadphones
	KindBluetoothA2DP
	KindBluetoothLE
	KindBluetoothSCO
)

// String returns a user-facing name for the kind.
func (k DeviceKind) String() string {
	switch k {
	case KindBuiltinMic:
		return "Built-in Microphone"
	case KindBuiltinSpeaker:
		return "Built-in Speaker"
	case KindUSB:
		return "USB"
	case KindUSBHeadset:
		return "USB Headset"
	case KindUSBAccessory:
		return "USB"
	case KindWiredHeadset:
		return "Wired Headset"
	case KindWiredHeadphones:
		return "Wired Headphones"
	case KindBluetoothA2DP:
		return "Bluetooth"
	case KindBluetoothLE:
		return "Bluetooth LE"
	case KindBluetoothSCO:
		return "Bluetooth SCO"
	default:
		return "External"
	}
}

// External reports whether the kind identifies an external input device.
// Anything else implies the built-in microphone.
func (k DeviceKind) External() bool {
	switch k {
	case KindUSB, KindUSBHeadset, KindUSBAccessory, KindWiredHeadset:
		return true
	default:
		return false
	}
}

// Device describes one enumerable input or output device.
type Device struct {
	ID   string
	Kind DeviceKind
	Name string
}

// DisplayName returns the device name, falling back to a kind-based
// label when the host reports an empty product name.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Kind.String()
}

// Input is an exclusive capture stream delivering interleaved 16-bit
// little-endian PCM.
type Input interface {
	// Start begins capture.
	Start() error
	// Read blocks for up to one buffer period and fills p with whole
	// frames. p should be at least BufferSize bytes.
	Read(p []byte) (int, error)
	// Stop halts capture but keeps the stream open for Start again.
	Stop() error
	Close() error
	// BufferSize is the device's minimum read size in bytes.
	BufferSize() int
}

// Output is an exclusive playback stream consuming interleaved 16-bit
// little-endian PCM.
type Output interface {
	Start() error
	// Write blocks for up to one buffer period while the device drains.
	Write(p []byte) (int, error)
	Stop() error
	Close() error
	// BufferSize is the device's minimum write size in bytes.
	BufferSize() int
}

// Host opens device streams and enumerates hardware.
type Host interface {
	OpenInput(deviceID string, format config.Format) (Input, error)
	OpenOutput(deviceID string, format config.Format) (Output, error)
	Inputs() ([]Device, error)
	Outputs() ([]Device, error)
	Close() error
}
