package output

import (
	"fmt"

	"github.com/drgolem/dmm/pkg/ringbuffer"
	"github.com/drgolem/dmm/pkg/sample"
	"github.com/drgolem/dmm/pkg/types"
)

// Bridge converts decoded buffers into interleaved samples of type T and
// pushes them into the ring. It is used only by the decoding goroutine.
type Bridge[T sample.Sample] struct {
	ring     *ringbuffer.RingBuffer[T]
	channels int
	scratch  []T

	fromInt   func(v int32, bits int) T
	fromFloat func(v float32) T
}

// NewBridge returns a bridge writing channels-interleaved samples into ring.
func NewBridge[T sample.Sample](ring *ringbuffer.RingBuffer[T], channels int) *Bridge[T] {
	return &Bridge[T]{
		ring:      ring,
		channels:  channels,
		fromInt:   sample.IntConverter[T](),
		fromFloat: sample.FloatConverter[T](),
	}
}

// ScratchCap returns the capacity of the conversion buffer in samples.
func (b *Bridge[T]) ScratchCap() int {
	return cap(b.scratch)
}

// Write converts buf and writes every sample into the ring, blocking while
// it is full. Empty buffers are ignored.
//
// It returns ringbuffer.ErrClosed if the stream is closed while waiting.
func (b *Bridge[T]) Write(buf *types.AudioBuffer) error {
	frames := buf.Frames()
	if frames == 0 {
		return nil
	}
	if buf.Spec.Channels != b.channels {
		return fmt.Errorf("%w: buffer has %d channels, stream has %d",
			ErrSpecMismatch, buf.Spec.Channels, b.channels)
	}

	// The decode buffer capacity is constant for a decoder, so this grows
	// at most once per track
	if need := buf.Capacity() * b.channels; cap(b.scratch) < need {
		b.scratch = make([]T, need)
	}
	out := b.scratch[:frames*b.channels]
	convert(out, buf, frames, b.fromInt, b.fromFloat)

	_, err := b.ring.WriteBlocking(out)
	return err
}

// Interleave converts the valid frames of buf to T, reusing dst when it is
// large enough, and returns the interleaved samples.
func Interleave[T sample.Sample](dst []T, buf *types.AudioBuffer) []T {
	frames := buf.Frames()
	n := frames * buf.Spec.Channels
	if cap(dst) < n {
		dst = make([]T, n)
	}
	dst = dst[:n]
	convert(dst, buf, frames, sample.IntConverter[T](), sample.FloatConverter[T]())
	return dst
}

func convert[T sample.Sample](out []T, buf *types.AudioBuffer, frames int,
	fromInt func(int32, int) T, fromFloat func(float32) T) {
	channels := buf.Spec.Channels
	stride := buf.Capacity()

	switch {
	case buf.IsFloat() && buf.Planar:
		for ch := 0; ch < channels; ch++ {
			plane := buf.Float[ch*stride : ch*stride+frames]
			for i, v := range plane {
				out[i*channels+ch] = fromFloat(v)
			}
		}
	case buf.IsFloat():
		for i, v := range buf.Float[:frames*channels] {
			out[i] = fromFloat(v)
		}
	case buf.Planar:
		bits := buf.BitDepth
		for ch := 0; ch < channels; ch++ {
			plane := buf.Int[ch*stride : ch*stride+frames]
			for i, v := range plane {
				out[i*channels+ch] = fromInt(v, bits)
			}
		}
	default:
		bits := buf.BitDepth
		for i, v := range buf.Int[:frames*channels] {
			out[i] = fromInt(v, bits)
		}
	}
}
