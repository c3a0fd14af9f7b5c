package output

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/drgolem/dmm/pkg/ringbuffer"
	"github.com/drgolem/dmm/pkg/sample"
	"github.com/drgolem/dmm/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for a sample format outside the closed set.
	ErrUnsupportedFormat = errors.New("unsupported sample format")

	// ErrOpenFailed wraps device errors while opening or starting a stream.
	ErrOpenFailed = errors.New("failed to open audio output")

	// ErrSpecMismatch is returned when a buffer does not match the stream layout.
	ErrSpecMismatch = errors.New("signal spec mismatch")
)

const (
	DefaultBufferDuration  = 200 * time.Millisecond
	DefaultFramesPerBuffer = 512
)

// Options tunes an output stream. The zero value uses the defaults.
type Options struct {
	// BufferDuration is the length of the sample ring.
	BufferDuration time.Duration
	// FramesPerBuffer is the hardware callback size hint.
	FramesPerBuffer int
	// PollInterval is the producer back-off while the ring is full.
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BufferDuration <= 0 {
		o.BufferDuration = DefaultBufferDuration
	}
	if o.FramesPerBuffer <= 0 {
		o.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// RingCapacity returns the ring size in samples for spec:
// (ms * rate / 1000) * channels.
func RingCapacity(spec types.SignalSpec, d time.Duration) int {
	return (int(d.Milliseconds()) * spec.Rate / 1000) * spec.Channels
}

// Stats are consumer-side counters.
type Stats struct {
	Callbacks uint64
	Underruns uint64 // callbacks padded with silence
	Played    uint64 // samples taken from the ring
}

// Output is a sample-format-erased open stream.
type Output interface {
	// Start starts the hardware stream. Unlike HintPlay, failure is reported.
	Start() error
	// Write converts and enqueues one decoded buffer, blocking while the ring is full.
	Write(buf *types.AudioBuffer) error
	// HintPlay starts the hardware stream. Failure is logged and ignored.
	HintPlay()
	// HintPause stops the hardware stream. Failure is logged and ignored.
	HintPause()
	// Flush stops the hardware stream, ignoring the result.
	Flush()
	// Drain waits until the ring is empty or timeout elapses.
	Drain(timeout time.Duration) bool
	Close() error

	Spec() types.SignalSpec
	Format() sample.Format
	Buffered() int
	Running() bool
	Stats() Stats
}

// Stream owns the ring, the bridge and the hardware stream for one signal
// spec and sample type.
type Stream[T sample.Sample] struct {
	*Bridge[T]

	ring    *ringbuffer.RingBuffer[T]
	hw      HardwareStream
	spec    types.SignalSpec
	format  sample.Format
	logger  *slog.Logger
	silence T
	// consumer-side buffer, allocated once
	pull []T

	running   atomic.Bool
	closed    atomic.Bool
	callbacks atomic.Uint64
	underruns atomic.Uint64
	played    atomic.Uint64
}

// Open creates a ring of opts.BufferDuration and opens a stream on dev.
// The stream is not started; call Start once data is about to flow.
func Open[T sample.Sample](dev Device, spec types.SignalSpec, opts Options) (*Stream[T], error) {
	opts = opts.withDefaults()
	if spec.Rate <= 0 || spec.Channels <= 0 {
		return nil, fmt.Errorf("%w: invalid signal spec %v", ErrOpenFailed, spec)
	}

	ring := ringbuffer.New[T](RingCapacity(spec, opts.BufferDuration))
	if opts.PollInterval > 0 {
		ring.SetPollInterval(opts.PollInterval)
	}

	s := &Stream[T]{
		Bridge:  NewBridge(ring, spec.Channels),
		ring:    ring,
		spec:    spec,
		format:  sample.FormatOf[T](),
		logger:  opts.Logger,
		silence: sample.Silence[T](),
		pull:    make([]T, opts.FramesPerBuffer*spec.Channels),
	}

	cfg := StreamConfig{Spec: spec, Format: s.format, FramesPerBuffer: opts.FramesPerBuffer}
	hw, err := dev.OpenStream(cfg, s.fill)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %v %s: %w", ErrOpenFailed, dev.Name(), spec, s.format, err)
	}
	s.hw = hw

	s.logger.Debug("Audio output opened",
		"device", dev.Name(),
		"sample_rate", spec.Rate,
		"channels", spec.Channels,
		"format", s.format.String(),
		"ring_samples", ring.Size())
	return s, nil
}

// OpenFormat picks the Stream instantiation for format.
func OpenFormat(format sample.Format, dev Device, spec types.SignalSpec, opts Options) (Output, error) {
	switch format {
	case sample.U8:
		return openOutput[uint8](dev, spec, opts)
	case sample.S16:
		return openOutput[int16](dev, spec, opts)
	case sample.S32:
		return openOutput[int32](dev, spec, opts)
	case sample.F32:
		return openOutput[float32](dev, spec, opts)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

func openOutput[T sample.Sample](dev Device, spec types.SignalSpec, opts Options) (Output, error) {
	s, err := Open[T](dev, spec, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// fill is the device callback. It never blocks.
func (s *Stream[T]) fill(dst []byte) {
	s.callbacks.Add(1)
	bps := s.format.BytesPerSample()
	want := len(dst) / bps
	short := false

	for off := 0; off < want; {
		chunk := s.pull[:min(len(s.pull), want-off)]
		n, _ := s.ring.Read(chunk)
		if n < len(chunk) {
			short = true
			for i := n; i < len(chunk); i++ {
				chunk[i] = s.silence
			}
		}
		s.played.Add(uint64(n))
		sample.Encode(dst[off*bps:], chunk)
		off += len(chunk)
	}

	// Trailing partial sample, if the device handed us one
	clear(dst[want*bps:])

	if short {
		s.underruns.Add(1)
	}
}

// Write is served by the embedded Bridge. Writes after Close fail
// immediately with ringbuffer.ErrClosed.
func (s *Stream[T]) Write(buf *types.AudioBuffer) error {
	if s.closed.Load() {
		return ringbuffer.ErrClosed
	}
	return s.Bridge.Write(buf)
}

// Start starts the hardware stream if it is not running.
func (s *Stream[T]) Start() error {
	if s.closed.Load() {
		return ringbuffer.ErrClosed
	}
	if s.running.Load() {
		return nil
	}
	if err := s.hw.Start(); err != nil {
		return fmt.Errorf("%w: start: %w", ErrOpenFailed, err)
	}
	s.running.Store(true)
	return nil
}

func (s *Stream[T]) HintPlay() {
	if s.closed.Load() || s.running.Load() {
		return
	}
	if err := s.hw.Start(); err != nil {
		s.logger.Debug("Failed to start output stream", "error", err)
		return
	}
	s.running.Store(true)
}

func (s *Stream[T]) HintPause() {
	if s.closed.Load() || !s.running.Load() {
		return
	}
	if err := s.hw.Stop(); err != nil {
		s.logger.Debug("Failed to pause output stream", "error", err)
		return
	}
	s.running.Store(false)
}

func (s *Stream[T]) Flush() {
	if s.closed.Load() || !s.running.Load() {
		return
	}
	_ = s.hw.Stop()
	s.running.Store(false)
}

// Drain waits for the callback to consume everything in the ring.
// It returns false on timeout or if the stream is not running.
func (s *Stream[T]) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for s.ring.AvailableRead() > 0 {
		if !s.running.Load() || time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Close stops and releases the hardware stream. Pending samples are dropped.
func (s *Stream[T]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.ring.Close()

	var errs []error
	if s.running.Load() {
		if err := s.hw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop: %w", err))
		}
		s.running.Store(false)
	}
	if err := s.hw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Stream[T]) Spec() types.SignalSpec { return s.spec }
func (s *Stream[T]) Format() sample.Format  { return s.format }
func (s *Stream[T]) Buffered() int          { return int(s.ring.AvailableRead()) }

// Running reports whether the hardware stream is started.
func (s *Stream[T]) Running() bool { return s.running.Load() }

func (s *Stream[T]) Stats() Stats {
	return Stats{
		Callbacks: s.callbacks.Load(),
		Underruns: s.underruns.Load(),
		Played:    s.played.Load(),
	}
}
