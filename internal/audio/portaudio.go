package audio

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/vdo/FRecorder/internal/config"
)

// minFramesPerBuffer bounds the stream buffer so low-latency devices do
// not force sub-millisecond reads.
const minFramesPerBuffer = 256

type paHost struct {
	log zerolog.Logger
}

// NewPortAudioHost initializes PortAudio and returns the production Host.
// Close terminates the PortAudio runtime.
func NewPortAudioHost(log zerolog.Logger) (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &paHost{log: log}, nil
}

func (h *paHost) Close() error {
	return portaudio.Terminate()
}

func (h *paHost) Inputs() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:   d.Name,
				Kind: classifyInput(d.Name),
				Name: d.Name,
			})
		}
	}
	return result, nil
}

func (h *paHost) Outputs() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			result = append(result, Device{
				ID:   d.Name,
				Kind: classifyOutput(d.Name),
				Name: d.Name,
			})
		}
	}
	return result, nil
}

// classifyInput maps a host device name onto a transport kind. PortAudio
// exposes no transport metadata, so the name is the only signal.
func classifyInput(name string) DeviceKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "usb") && strings.Contains(n, "headset"):
		return KindUSBHeadset
	case strings.Contains(n, "usb"):
		return KindUSB
	case strings.Contains(n, "bluetooth"):
		return KindBluetoothSCO
	case strings.Contains(n, "headset"):
		return KindWiredHeadset
	default:
		return KindBuiltinMic
	}
}

func classifyOutput(name string) DeviceKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "bluetooth") || strings.Contains(n, "a2dp"):
		return KindBluetoothA2DP
	case strings.Contains(n, "usb") && strings.Contains(n, "headset"):
		return KindUSBHeadset
	case strings.Contains(n, "usb"):
		return KindUSB
	case strings.Contains(n, "headphone"):
		return KindWiredHeadphones
	case strings.Contains(n, "headset"):
		return KindWiredHeadset
	default:
		return KindBuiltinSpeaker
	}
}

func findDevice(deviceID string, input bool) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultInputID {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func framesPerBuffer(d *portaudio.DeviceInfo, sampleRate int) int {
	frames := int(d.DefaultLowInputLatency.Seconds() * float64(sampleRate))
	if frames < minFramesPerBuffer {
		frames = minFramesPerBuffer
	}
	return frames
}

func (h *paHost) OpenInput(deviceID string, format config.Format) (Input, error) {
	device, err := findDevice(deviceID, true)
	if err != nil {
		return nil, err
	}

	frames := framesPerBuffer(device, format.SampleRate)
	buffer := make([]int16, frames*format.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: frames,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	h.log.Debug().Str("device", device.Name).Int("frames", frames).Msg("input stream opened")
	return &paInput{stream: stream, buf: buffer}, nil
}

func (h *paHost) OpenOutput(deviceID string, format config.Format) (Output, error) {
	device, err := findDevice(deviceID, false)
	if err != nil {
		return nil, err
	}

	frames := framesPerBuffer(device, format.SampleRate)
	buffer := make([]int16, frames*format.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.Channels,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: frames,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	h.log.Debug().Str("device", device.Name).Int("frames", frames).Msg("output stream opened")
	return &paOutput{stream: stream, buf: buffer}, nil
}

type paInput struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *paInput) Start() error {
	return s.stream.Start()
}

func (s *paInput) Read(p []byte) (int, error) {
	if err := s.stream.Read(); err != nil {
		return 0, err
	}
	n := len(s.buf) * 2
	if n > len(p) {
		n = len(p) &^ 1
	}
	for i := 0; i*2+1 < n; i++ {
		binary.LittleEndian.PutUint16(p[i*2:i*2+2], uint16(s.buf[i]))
	}
	return n, nil
}

func (s *paInput) Stop() error {
	return s.stream.Stop()
}

func (s *paInput) Close() error {
	return s.stream.Close()
}

func (s *paInput) BufferSize() int {
	return len(s.buf) * 2
}

type paOutput struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *paOutput) Start() error {
	return s.stream.Start()
}

func (s *paOutput) Write(p []byte) (int, error) {
	n := len(p) &^ 1
	if n > len(s.buf)*2 {
		n = len(s.buf) * 2
	}
	for i := range s.buf {
		s.buf[i] = 0
	}
	for i := 0; i*2+1 < n; i++ {
		s.buf[i] = int16(binary.LittleEndian.Uint16(p[i*2 : i*2+2]))
	}
	if err := s.stream.Write(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *paOutput) Stop() error {
	return s.stream.Stop()
}

func (s *paOutput) Close() error {
	return s.stream.Close()
}

func (s *paOutput) BufferSize() int {
	return len(s.buf) * 2
}
