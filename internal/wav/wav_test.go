package wav

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vdo/FRecorder/internal/config"
)

func tempWavPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("pre-create output: %v", err)
	}
	return path
}

func int16Chunk(value int16, samples int) []byte {
	chunk := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(chunk[i*2:i*2+2], uint16(value))
	}
	return chunk
}

func TestWriterHeaderRoundTrip(t *testing.T) {
	path := tempWavPath(t)
	format := config.Format{SampleRate: 44100, Channels: 1}

	w, err := NewWriter(path, format)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := w.Write(int16Chunk(100, 2048)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := TrimTail(path, format); err != nil {
		t.Fatalf("TrimTail: %v", err)
	}
	if err := FinalizeHeader(path, format); err != nil {
		t.Fatalf("FinalizeHeader: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	// 16384 data bytes are below the 200ms trim amount at 44.1kHz
	// (17640 bytes), so the trim is skipped.
	wantLen := HeaderSize + 4*2048*2
	if len(data) != wantLen {
		t.Fatalf("file length = %d, want %d", len(data), wantLen)
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if int(dataSize) != len(data)-HeaderSize {
		t.Errorf("data_size = %d, want %d", dataSize, len(data)-HeaderSize)
	}
	riffSize := binary.LittleEndian.Uint32(data[4:8])
	if riffSize != dataSize+36 {
		t.Errorf("riff size = %d, want %d", riffSize, dataSize+36)
	}
	if got := binary.LittleEndian.Uint16(data[20:22]); got != 1 {
		t.Errorf("audio_format = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 44100 {
		t.Errorf("sample_rate = %d, want 44100", got)
	}
	if got := binary.LittleEndian.Uint32(data[28:32]); got != 44100*1*2 {
		t.Errorf("byte_rate = %d, want %d", got, 44100*1*2)
	}
	if got := binary.LittleEndian.Uint16(data[32:34]); got != 2 {
		t.Errorf("block_align = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bits_per_sample = %d, want 16", got)
	}
	if int(dataSize)%format.BytesPerFrame() != 0 {
		t.Errorf("data_size %d not frame aligned", dataSize)
	}

	// First post-header sample is +100: 0x64, 0x00 little-endian.
	if data[44] != 0x64 || data[45] != 0x00 {
		t.Errorf("first sample bytes = %#x %#x, want 0x64 0x00", data[44], data[45])
	}
}

func TestTrimTailRemoves200ms(t *testing.T) {
	path := tempWavPath(t)
	format := config.Format{SampleRate: 44100, Channels: 2}

	w, err := NewWriter(path, format)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	// Two seconds of stereo audio.
	if _, err := w.Write(int16Chunk(1, 2*44100*2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	preTrim := int64(2 * 44100 * 2 * 2)
	trim := int64(44100/5) * int64(format.BytesPerFrame())

	if err := TrimTail(path, format); err != nil {
		t.Fatalf("TrimTail: %v", err)
	}
	if err := FinalizeHeader(path, format); err != nil {
		t.Fatalf("FinalizeHeader: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got, want := fi.Size(), HeaderSize+preTrim-trim; got != want {
		t.Fatalf("post-trim size = %d, want %d", got, want)
	}

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if int64(info.DataSize) != preTrim-trim {
		t.Errorf("data_size = %d, want %d", info.DataSize, preTrim-trim)
	}
	if info.DataSize%info.BytesPerFrame() != 0 {
		t.Errorf("data_size %d not frame aligned", info.DataSize)
	}
}

func TestNewWriterRequiresExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.wav")
	if _, err := NewWriter(path, config.Format{SampleRate: 44100, Channels: 1}); err == nil {
		t.Fatal("expected error for missing output file")
	}
}

func TestReadInfoMalformed(t *testing.T) {
	short := filepath.Join(t.TempDir(), "short.wav")
	if err := os.WriteFile(short, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInfo(short); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("short file: got %v, want ErrMalformedHeader", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.wav")
	junk := make([]byte, 64)
	copy(junk, "NOPE")
	if err := os.WriteFile(bad, junk, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInfo(bad); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("bad magic: got %v, want ErrMalformedHeader", err)
	}
}

func TestReadInfoRejectsNon16Bit(t *testing.T) {
	path := tempWavPath(t)
	format := config.Format{SampleRate: 44100, Channels: 1}
	header := encodeHeader(0, format)
	binary.LittleEndian.PutUint16(header[34:36], 8)
	if err := os.WriteFile(path, header, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInfo(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestReadMonoSamplesAveragesChannels(t *testing.T) {
	path := tempWavPath(t)
	format := config.Format{SampleRate: 44100, Channels: 2}
	w, err := NewWriter(path, format)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	// Frames: (1000, 3000), (-2000, 2000)
	pcm := make([]byte, 8)
	binary.LittleEndian.PutUint16(pcm[0:2], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(pcm[2:4], uint16(int16(3000)))
	negTwoThousand := int16(-2000)
	binary.LittleEndian.PutUint16(pcm[4:6], uint16(negTwoThousand))
	binary.LittleEndian.PutUint16(pcm[6:8], uint16(int16(2000)))
	if _, err := w.Write(pcm); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := FinalizeHeader(path, format); err != nil {
		t.Fatal(err)
	}

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	samples, err := ReadMonoSamples(path, info)
	if err != nil {
		t.Fatalf("ReadMonoSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("frames = %d, want 2", len(samples))
	}
	want0 := (1000.0/32768.0 + 3000.0/32768.0) / 2.0
	if diff := samples[0] - want0; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("samples[0] = %v, want %v", samples[0], want0)
	}
	want1 := (-2000.0/32768.0 + 2000.0/32768.0) / 2.0
	if diff := samples[1] - want1; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("samples[1] = %v, want %v", samples[1], want1)
	}
}

func TestWriteMonoSamplesClampsAndDuplicates(t *testing.T) {
	path := tempWavPath(t)
	format := config.Format{SampleRate: 44100, Channels: 2}
	w, err := NewWriter(path, format)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(make([]byte, 12)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := FinalizeHeader(path, format); err != nil {
		t.Fatal(err)
	}

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteMonoSamples(path, info, []float64{0.5, 2.0, -2.0}); err != nil {
		t.Fatalf("WriteMonoSamples: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []int16{16383, 16383, 32767, 32767, -32767, -32767}
	for i, wv := range want {
		got := int16(binary.LittleEndian.Uint16(data[HeaderSize+i*2 : HeaderSize+i*2+2]))
		if got != wv {
			t.Errorf("sample %d = %d, want %d", i, got, wv)
		}
	}
}
