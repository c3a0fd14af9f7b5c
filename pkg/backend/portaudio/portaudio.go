// Package portaudio is an output.Device backed by a PortAudio callback stream.
//
// The platform invokes the callback on its own real-time thread, outside the
// Go scheduler. The callback only calls the fill function handed to
// OpenStream, which never blocks or allocates.
package portaudio

import (
	"errors"
	"fmt"

	pa "github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/sample"
)

// ErrUnsupportedFormat is returned for sample formats PortAudio cannot carry.
var ErrUnsupportedFormat = errors.New("portaudio: unsupported sample format")

// Device opens callback streams on one PortAudio output device.
// pa.Initialize must have been called before OpenStream.
type Device struct {
	Index int
}

// New returns a device for the PortAudio device index.
func New(index int) *Device {
	return &Device{Index: index}
}

func (d *Device) Name() string {
	return fmt.Sprintf("portaudio:%d", d.Index)
}

// paFormat maps a sample format to its PortAudio counterpart. U8 samples
// travel as signed 8-bit with the sign bit flipped in the callback.
func paFormat(f sample.Format) (pa.PaSampleFormat, error) {
	switch f {
	case sample.U8:
		return pa.SampleFmtInt8, nil
	case sample.S16:
		return pa.SampleFmtInt16, nil
	case sample.S32:
		return pa.SampleFmtInt32, nil
	case sample.F32:
		return pa.SampleFmtFloat32, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
}

// OpenStream opens, but does not start, a callback stream for cfg.
func (d *Device) OpenStream(cfg output.StreamConfig, fill output.FillFunc) (output.HardwareStream, error) {
	format, err := paFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	s := &stream{
		fill:     fill,
		unsigned: cfg.Format == sample.U8,
		ps: &pa.PaStream{
			OutputParameters: &pa.PaStreamParameters{
				DeviceIndex:  d.Index,
				ChannelCount: cfg.Spec.Channels,
				SampleFormat: format,
			},
			SampleRate: float64(cfg.Spec.Rate),
		},
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = output.DefaultFramesPerBuffer
	}
	if err := s.ps.OpenCallback(frames, s.callback); err != nil {
		return nil, fmt.Errorf("failed to open stream with callback: %w", err)
	}
	return s, nil
}

type stream struct {
	ps       *pa.PaStream
	fill     output.FillFunc
	unsigned bool
}

// callback is the consumer side of the sample ring.
func (s *stream) callback(
	input, out []byte,
	frameCount uint,
	timeInfo *pa.StreamCallbackTimeInfo,
	statusFlags pa.StreamCallbackFlags,
) pa.StreamCallbackResult {
	s.fill(out)
	if s.unsigned {
		for i := range out {
			out[i] ^= 0x80
		}
	}
	return pa.Continue
}

func (s *stream) Start() error {
	if err := s.ps.StartStream(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

func (s *stream) Stop() error {
	if err := s.ps.StopStream(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return nil
}

func (s *stream) Close() error {
	if err := s.ps.CloseCallback(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}
