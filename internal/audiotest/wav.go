package audiotest

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youpy/go-wav"
)

// Waveform returns the integer sample for a frame and channel.
type Waveform func(frame, channel int) int

// Ramp produces frame-indexed values that differ per channel, so ordering
// and interleaving errors are visible. Values wrap within 16 bits.
func Ramp(frame, channel int) int {
	return int(int16((frame*2 + channel) % 30000))
}

// Sine returns a 16-bit sine waveform at freq Hz.
func Sine(rate int, freq float64) Waveform {
	return func(frame, channel int) int {
		t := float64(frame) / float64(rate)
		return int(math.Sin(2*math.Pi*freq*t) * 16000)
	}
}

// WriteWAV writes a PCM WAV file of frames frames to w.
func WriteWAV(w io.Writer, rate, channels, bits, frames int, gen Waveform) error {
	bps := bits / 8
	data := make([]byte, 0, frames*channels*bps)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := gen(i, ch)
			switch bits {
			case 8:
				data = append(data, byte(v+128))
			case 16:
				data = append(data, byte(v), byte(v>>8))
			case 24:
				data = append(data, byte(v), byte(v>>8), byte(v>>16))
			case 32:
				data = append(data, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			default:
				return fmt.Errorf("unsupported bits per sample: %d", bits)
			}
		}
	}

	wavWriter := wav.NewWriter(w, uint32(frames), uint16(channels), uint32(rate), uint16(bits))
	if _, err := wavWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// WAV returns an in-memory 16-bit WAV of the given duration.
func WAV(t testing.TB, rate, channels int, d time.Duration, gen Waveform) *bytes.Reader {
	t.Helper()
	frames := int(d.Seconds() * float64(rate))
	var buf bytes.Buffer
	if err := WriteWAV(&buf, rate, channels, 16, frames, gen); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

// WAVFile writes a 16-bit WAV into the test's temp dir and returns its path.
func WAVFile(t testing.TB, name string, rate, channels int, d time.Duration, gen Waveform) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	frames := int(d.Seconds() * float64(rate))
	if err := WriteWAV(f, rate, channels, 16, frames, gen); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	return path
}

// ReadCloser wraps a ReadSeeker and records whether Close was called.
type ReadCloser struct {
	io.ReadSeeker
	closed atomic.Bool
}

// NewReadCloser wraps r.
func NewReadCloser(r io.ReadSeeker) *ReadCloser {
	return &ReadCloser{ReadSeeker: r}
}

func (r *ReadCloser) Close() error {
	r.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (r *ReadCloser) Closed() bool { return r.closed.Load() }
