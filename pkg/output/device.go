// Package output moves decoded audio into a hardware stream through a
// lock-free sample ring.
//
// The producer side (Bridge) converts decoded buffers into the device sample
// type and blocks while the ring is full. The consumer side is the device
// callback, which never blocks and pads any shortfall with silence.
package output

import (
	"github.com/drgolem/dmm/pkg/sample"
	"github.com/drgolem/dmm/pkg/types"
)

// StreamConfig is the negotiated configuration of a hardware stream.
type StreamConfig struct {
	Spec            types.SignalSpec
	Format          sample.Format
	FramesPerBuffer int
}

// FillFunc fills dst completely with interleaved little-endian samples in
// the stream format. It is called from the device's real-time thread.
type FillFunc func(dst []byte)

// HardwareStream is an open device stream.
type HardwareStream interface {
	// Start begins pulling samples through the fill function.
	Start() error
	// Stop pauses the stream. It can be started again.
	Stop() error
	// Close releases the stream.
	Close() error
}

// Device opens hardware streams.
type Device interface {
	Name() string
	OpenStream(cfg StreamConfig, fill FillFunc) (HardwareStream, error)
}
