// Package oto is an output.Device backed by an oto v3 context.
//
// oto allows a single context per process, so the first stream fixes the
// sample rate, channel count and format. Later streams must match it.
package oto

import (
	"errors"
	"fmt"
	"sync"
	"time"

	otolib "github.com/ebitengine/oto/v3"

	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/sample"
	"github.com/drgolem/dmm/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for S32, which oto cannot play.
	ErrUnsupportedFormat = errors.New("oto: unsupported sample format")

	// ErrContextMismatch is returned when a stream differs from the
	// process-wide context negotiated by the first stream.
	ErrContextMismatch = errors.New("oto: stream does not match the audio context")
)

var (
	ctxMu     sync.Mutex
	ctx       *otolib.Context
	ctxSpec   types.SignalSpec
	ctxFormat sample.Format
)

// Device opens oto players on the shared context.
type Device struct {
	// BufferSize is the platform buffer length. Zero uses the oto default.
	BufferSize time.Duration
}

func New() *Device {
	return &Device{}
}

func (d *Device) Name() string { return "oto" }

func otoFormat(f sample.Format) (otolib.Format, error) {
	switch f {
	case sample.U8:
		return otolib.FormatUnsignedInt8, nil
	case sample.S16:
		return otolib.FormatSignedInt16LE, nil
	case sample.F32:
		return otolib.FormatFloat32LE, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
}

// context returns the process context, creating it on first use.
func (d *Device) context(spec types.SignalSpec, f sample.Format) (*otolib.Context, error) {
	format, err := otoFormat(f)
	if err != nil {
		return nil, err
	}

	ctxMu.Lock()
	defer ctxMu.Unlock()

	if ctx != nil {
		if spec != ctxSpec || f != ctxFormat {
			return nil, fmt.Errorf("%w: have %v %s, want %v %s",
				ErrContextMismatch, ctxSpec, ctxFormat, spec, f)
		}
		return ctx, nil
	}

	c, ready, err := otolib.NewContext(&otolib.NewContextOptions{
		SampleRate:   spec.Rate,
		ChannelCount: spec.Channels,
		Format:       format,
		BufferSize:   d.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	ctx, ctxSpec, ctxFormat = c, spec, f
	return ctx, nil
}

// OpenStream creates a paused player pulling from fill.
func (d *Device) OpenStream(cfg output.StreamConfig, fill output.FillFunc) (output.HardwareStream, error) {
	c, err := d.context(cfg.Spec, cfg.Format)
	if err != nil {
		return nil, err
	}
	return &stream{player: c.NewPlayer(fillReader(fill))}, nil
}

// fillReader adapts the fill function to the io.Reader oto pulls from.
// It never reports EOF; an empty ring reads as silence.
type fillReader output.FillFunc

func (f fillReader) Read(p []byte) (int, error) {
	f(p)
	return len(p), nil
}

type stream struct {
	player *otolib.Player
}

func (s *stream) Start() error {
	s.player.Play()
	return s.player.Err()
}

func (s *stream) Stop() error {
	s.player.Pause()
	return s.player.Err()
}

func (s *stream) Close() error {
	return s.player.Close()
}
