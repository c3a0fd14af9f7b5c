// Package audiotest provides test doubles for the audio pipeline: a
// synthetic consumer device and WAV fixture builders.
package audiotest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/dmm/pkg/output"
)

// Device is an output.Device whose streams pull samples from a goroutine
// at Speed times real time. With Speed 0 nothing is pulled automatically
// and tests drive the callback through Stream.Pull.
type Device struct {
	Speed float64
	// Record keeps every byte the streams pulled.
	Record bool

	// FailOpen and FailStart inject device errors.
	FailOpen  error
	FailStart error

	mu      sync.Mutex
	streams []*Stream
}

// NewDevice returns a device consuming at speed times real time.
func NewDevice(speed float64) *Device {
	return &Device{Speed: speed}
}

func (d *Device) Name() string { return "audiotest" }

func (d *Device) OpenStream(cfg output.StreamConfig, fill output.FillFunc) (output.HardwareStream, error) {
	if d.FailOpen != nil {
		return nil, d.FailOpen
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = output.DefaultFramesPerBuffer
	}

	s := &Stream{
		cfg:       cfg,
		fill:      fill,
		buf:       make([]byte, frames*cfg.Spec.Channels*cfg.Format.BytesPerSample()),
		record:    d.Record,
		failStart: d.FailStart,
	}
	if d.Speed > 0 {
		period := time.Duration(float64(frames) / float64(cfg.Spec.Rate) * float64(time.Second) / d.Speed)
		s.period = max(period, 50*time.Microsecond)
	}

	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Streams returns every stream opened so far.
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Last returns the most recently opened stream, or nil.
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

var errClosed = errors.New("audiotest: stream closed")

// Stream is a synthetic hardware stream.
type Stream struct {
	cfg       output.StreamConfig
	fill      output.FillFunc
	buf       []byte
	period    time.Duration
	record    bool
	failStart error

	mu       sync.Mutex
	running  bool
	closed   bool
	stop     chan struct{}
	done     chan struct{}
	recorded []byte

	starts atomic.Int32
	stops  atomic.Int32
	pulled atomic.Uint64
}

// Config returns the configuration the stream was opened with.
func (s *Stream) Config() output.StreamConfig { return s.cfg }

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if s.failStart != nil {
		return s.failStart
	}
	if s.running {
		return nil
	}
	s.running = true
	s.starts.Add(1)

	if s.period > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.run(s.stop, s.done)
	}
	return nil
}

func (s *Stream) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.pull(s.buf)
		}
	}
}

func (s *Stream) pull(buf []byte) {
	s.fill(buf)
	s.pulled.Add(uint64(len(buf)))
	if s.record {
		s.mu.Lock()
		s.recorded = append(s.recorded, buf...)
		s.mu.Unlock()
	}
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stops.Add(1)
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *Stream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Pull invokes the fill callback once for frames frames and returns the
// bytes produced. Use it with a Speed 0 device.
func (s *Stream) Pull(frames int) []byte {
	buf := make([]byte, frames*s.cfg.Spec.Channels*s.cfg.Format.BytesPerSample())
	s.pull(buf)
	return buf
}

// Running reports whether the stream is started.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether the stream was closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Starts and Stops count successful transitions.
func (s *Stream) Starts() int { return int(s.starts.Load()) }
func (s *Stream) Stops() int  { return int(s.stops.Load()) }

// PulledBytes returns the number of bytes handed to the device.
func (s *Stream) PulledBytes() uint64 { return s.pulled.Load() }

// Recorded returns a copy of every pulled byte when recording is enabled.
func (s *Stream) Recorded() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.recorded...)
}
