// Package wav reads and writes canonical 44-byte RIFF/WAVE files holding
// 16-bit little-endian integer PCM. Nothing beyond the fmt+data subset is
// supported; that is the on-disk contract of the recorder.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/vdo/FRecorder/internal/config"
)

// HeaderSize is the fixed canonical PCM header length.
const HeaderSize = 44

const bitsPerSample = 16

var (
	// ErrMalformedHeader indicates the file is shorter than a header or
	// the RIFF/WAVE magic does not match.
	ErrMalformedHeader = errors.New("wav: malformed header")

	// ErrUnsupportedFormat indicates a readable header describing
	// anything other than 16-bit integer PCM.
	ErrUnsupportedFormat = errors.New("wav: unsupported format")
)

// Info is the decoded header of an existing WAV file.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataSize      int
}

// BytesPerFrame is one interleaved frame: channels x 2 bytes.
func (i Info) BytesPerFrame() int {
	return i.Channels * (i.BitsPerSample / 8)
}

// Frames is the number of whole interleaved frames in the data chunk.
func (i Info) Frames() int {
	return i.DataSize / i.BytesPerFrame()
}

// Writer streams PCM to a file opened with a placeholder header. Writing
// is append-only; the header stays zeroed until FinalizeHeader runs.
type Writer struct {
	f      *os.File
	format config.Format
}

// NewWriter opens path for writing and emits the 44-byte placeholder.
// The output file must already exist as a regular file; the caller
// pre-creates it.
func NewWriter(path string, format config.Format) (*Writer, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("wav: stat output: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("wav: output %s is not a regular file", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wav: open output: %w", err)
	}
	placeholder := make([]byte, HeaderSize)
	if _, err := f.Write(placeholder); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: write placeholder header: %w", err)
	}
	return &Writer{f: f, format: format}, nil
}

// Write appends raw PCM bytes after the header.
func (w *Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Close flushes and closes the stream. It does not finalize the header;
// run TrimTail and FinalizeHeader afterwards.
func (w *Writer) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// TrimTail truncates the last 200ms of PCM to drop the stop transient.
// Skipped when the remaining data would be empty or negative.
func TrimTail(path string, format config.Format) error {
	tailBytes := int64(float64(format.SampleRate)*0.2) * int64(format.BytesPerFrame())
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	dataLen := fi.Size() - HeaderSize
	if dataLen <= tailBytes {
		return nil
	}
	return os.Truncate(path, fi.Size()-tailBytes)
}

// FinalizeHeader rewrites the 44-byte header with the final sizes.
func FinalizeHeader(path string, format config.Format) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	dataSize := fi.Size() - HeaderSize
	if dataSize < 0 {
		return ErrMalformedHeader
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	header := encodeHeader(uint32(dataSize), format)
	_, err = f.WriteAt(header, 0)
	return err
}

func encodeHeader(dataSize uint32, format config.Format) []byte {
	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], dataSize+36)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // integer PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(format.ByteRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(format.BytesPerFrame()))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}

// ReadInfo decodes and validates the header of an existing file.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return Info{}, ErrMalformedHeader
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Info{}, ErrMalformedHeader
	}
	info := Info{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
		DataSize:      int(binary.LittleEndian.Uint32(header[40:44])),
	}
	if info.BitsPerSample != bitsPerSample {
		return Info{}, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, info.BitsPerSample)
	}
	if audioFormat := binary.LittleEndian.Uint16(header[20:22]); audioFormat != 1 {
		return Info{}, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, audioFormat)
	}
	if info.Channels < 1 {
		return Info{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, info.Channels)
	}
	return info, nil
}

// ReadMonoSamples reads the whole data chunk, averaging channels per
// frame into mono doubles in [-1, 1].
func ReadMonoSamples(path string, info Info) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frameBytes := info.BytesPerFrame()
	frames := info.Frames()
	mono := make([]float64, frames)

	if _, err := f.Seek(HeaderSize, 0); err != nil {
		return nil, err
	}

	buf := make([]byte, 65536/frameBytes*frameBytes)
	idx := 0
	remaining := frames * frameBytes
	carry := 0
	for remaining > 0 && idx < frames {
		toRead := len(buf) - carry
		if toRead > remaining {
			toRead = remaining
		}
		n, _ := f.Read(buf[carry : carry+toRead])
		if n <= 0 {
			break
		}
		remaining -= n
		avail := carry + n
		pos := 0
		for pos+frameBytes <= avail && idx < frames {
			sum := 0.0
			for ch := 0; ch < info.Channels; ch++ {
				s := int16(binary.LittleEndian.Uint16(buf[pos+2*ch : pos+2*ch+2]))
				sum += float64(s) / 32768.0
			}
			mono[idx] = sum / float64(info.Channels)
			idx++
			pos += frameBytes
		}
		carry = avail - pos
		copy(buf, buf[pos:avail])
	}
	return mono[:idx], nil
}

// WriteMonoSamples rewrites the data chunk in place, storing the same
// processed mono sample to every channel of each frame. The header is
// untouched because the frame count is preserved.
func WriteMonoSamples(path string, info Info, mono []float64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(HeaderSize, 0); err != nil {
		return err
	}

	frameBytes := info.BytesPerFrame()
	buf := make([]byte, 0, 65536)
	for _, v := range mono {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		s := int16(v * 32767.0)
		for ch := 0; ch < info.Channels; ch++ {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
		}
		if len(buf)+frameBytes > cap(buf) {
			if _, err := f.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := f.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
