// Package audiotest provides an in-memory audio.Host for tests: scripted
// input streams, recording output streams, and device-acquisition
// accounting so hand-off ordering is observable.
package audiotest

import (
	"errors"
	"sync"
	"time"

	"github.com/vdo/FRecorder/internal/audio"
	"github.com/vdo/FRecorder/internal/config"
)

// ErrStopped is returned by a stream read interrupted by Stop.
var ErrStopped = errors.New("audiotest: stream stopped")

// Host is a fake audio.Host. The zero value is not usable; call NewHost.
type Host struct {
	mu            sync.Mutex
	inputDevices  []audio.Device
	outputDevices []audio.Device
	openInputErr  error
	queuedChunks  [][]byte
	silence       bool
	readDelay     time.Duration
	bufferSize    int

	openInputs    int
	maxOpenInputs int
	events        []string

	inputs  []*Input
	outputs []*Output
}

// NewHost returns a host with a 4096-byte stream buffer and no devices.
func NewHost() *Host {
	return &Host{bufferSize: 4096}
}

// SetInputDevices replaces the enumerable input devices.
func (h *Host) SetInputDevices(ds ...audio.Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inputDevices = append([]audio.Device(nil), ds...)
}

// SetOutputDevices replaces the enumerable output devices.
func (h *Host) SetOutputDevices(ds ...audio.Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outputDevices = append([]audio.Device(nil), ds...)
}

// FailNextOpenInput makes the next OpenInput fail with err.
func (h *Host) FailNextOpenInput(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openInputErr = err
}

// QueueInputChunks preloads PCM chunks delivered by the next opened
// input, one per Read.
func (h *Host) QueueInputChunks(chunks ...[]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range chunks {
		cp := make([]byte, len(c))
		copy(cp, c)
		h.queuedChunks = append(h.queuedChunks, cp)
	}
}

// SetSilence makes opened inputs produce endless zero chunks once their
// queue is drained instead of blocking.
func (h *Host) SetSilence(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.silence = on
}

// SetReadDelay paces every input read, simulating the device buffer
// period.
func (h *Host) SetReadDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readDelay = d
}

// SetBufferSize sets the stream buffer size for subsequently opened
// streams.
func (h *Host) SetBufferSize(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bufferSize = n
}

// MaxOpenInputs reports the peak number of concurrently open inputs.
func (h *Host) MaxOpenInputs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxOpenInputs
}

// Events returns the acquisition log ("open-input", "close-input",
// "open-output", "close-output") in order.
func (h *Host) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

// LastInput returns the most recently opened input, or nil.
func (h *Host) LastInput() *Input {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inputs) == 0 {
		return nil
	}
	return h.inputs[len(h.inputs)-1]
}

// LastOutput returns the most recently opened output, or nil.
func (h *Host) LastOutput() *Output {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.outputs) == 0 {
		return nil
	}
	return h.outputs[len(h.outputs)-1]
}

func (h *Host) OpenInput(deviceID string, format config.Format) (audio.Input, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openInputErr != nil {
		err := h.openInputErr
		h.openInputErr = nil
		return nil, err
	}
	in := newInput(h, h.bufferSize, h.queuedChunks, h.silence, h.readDelay)
	h.queuedChunks = nil
	h.inputs = append(h.inputs, in)
	h.openInputs++
	if h.openInputs > h.maxOpenInputs {
		h.maxOpenInputs = h.openInputs
	}
	h.events = append(h.events, "open-input")
	return in, nil
}

func (h *Host) OpenOutput(deviceID string, format config.Format) (audio.Output, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := &Output{host: h, bufSize: h.bufferSize}
	h.outputs = append(h.outputs, out)
	h.events = append(h.events, "open-output")
	return out, nil
}

func (h *Host) Inputs() ([]audio.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]audio.Device(nil), h.inputDevices...), nil
}

func (h *Host) Outputs() ([]audio.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]audio.Device(nil), h.outputDevices...), nil
}

func (h *Host) Close() error {
	return nil
}

func (h *Host) noteInputClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openInputs--
	h.events = append(h.events, "close-input")
}

func (h *Host) noteOutputClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "close-output")
}

// Input is a scripted capture stream.
type Input struct {
	host *Host

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	silence bool
	delay   time.Duration
	bufSize int
	stopped bool
	readErr error
}

func newInput(h *Host, bufSize int, queue [][]byte, silence bool, delay time.Duration) *Input {
	in := &Input{
		host:    h,
		queue:   queue,
		silence: silence,
		delay:   delay,
		bufSize: bufSize,
	}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Push appends a chunk for delivery and wakes a blocked Read.
func (i *Input) Push(chunk []byte) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	i.mu.Lock()
	i.queue = append(i.queue, cp)
	i.mu.Unlock()
	i.cond.Signal()
}

// FailReads makes Read return err once the queue is drained, simulating
// a hot-unplugged device.
func (i *Input) FailReads(err error) {
	i.mu.Lock()
	i.readErr = err
	i.mu.Unlock()
	i.cond.Broadcast()
}

func (i *Input) Start() error {
	i.mu.Lock()
	i.stopped = false
	i.mu.Unlock()
	return nil
}

func (i *Input) Read(p []byte) (int, error) {
	if i.delay > 0 {
		time.Sleep(i.delay)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for {
		if i.stopped {
			return 0, ErrStopped
		}
		if len(i.queue) > 0 {
			c := i.queue[0]
			i.queue = i.queue[1:]
			return copy(p, c), nil
		}
		if i.readErr != nil {
			return 0, i.readErr
		}
		if i.silence {
			n := i.bufSize
			if n > len(p) {
				n = len(p)
			}
			for j := 0; j < n; j++ {
				p[j] = 0
			}
			return n, nil
		}
		i.cond.Wait()
	}
}

func (i *Input) Stop() error {
	i.mu.Lock()
	i.stopped = true
	i.mu.Unlock()
	i.cond.Broadcast()
	return nil
}

func (i *Input) Close() error {
	i.Stop()
	i.host.noteInputClosed()
	return nil
}

func (i *Input) BufferSize() int {
	return i.bufSize
}

// Output records everything written to it.
type Output struct {
	host *Host

	mu      sync.Mutex
	bufSize int
	written []byte
	writes  int
}

func (o *Output) Start() error { return nil }

func (o *Output) Write(p []byte) (int, error) {
	n := len(p)
	if n > o.bufSize {
		n = o.bufSize
	}
	o.mu.Lock()
	o.written = append(o.written, p[:n]...)
	o.writes++
	o.mu.Unlock()
	return n, nil
}

func (o *Output) Stop() error { return nil }

func (o *Output) Close() error {
	o.host.noteOutputClosed()
	return nil
}

func (o *Output) BufferSize() int {
	return o.bufSize
}

// Written returns a copy of all bytes written so far.
func (o *Output) Written() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]byte(nil), o.written...)
}

// Writes returns the number of Write calls.
func (o *Output) Writes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writes
}
