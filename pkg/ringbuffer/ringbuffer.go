package ringbuffer

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/drgolem/dmm/pkg/types"
)

// Re-export common ringbuffer errors
var (
	ErrInsufficientSpace = types.ErrInsufficientSpace
	ErrInsufficientData  = types.ErrInsufficientData

	// ErrClosed is returned by WriteBlocking once the buffer is closed.
	ErrClosed = errors.New("ringbuffer closed")
)

// DefaultPollInterval is how long WriteBlocking sleeps while the buffer is full.
const DefaultPollInterval = 2 * time.Millisecond

// RingBuffer is a lock-free single-producer single-consumer ring buffer
// of audio samples.
//
// Thread safety:
//   - Write() and WriteBlocking() must only be called by the producer
//   - Read() must only be called by the consumer
//
// Unlike a byte ring sized for throughput, the capacity is kept exactly as
// requested so that it maps to a precise amount of audio time.
type RingBuffer[T any] struct {
	buffer   []T
	size     uint64
	writePos atomic.Uint64
	readPos  atomic.Uint64
	closed   atomic.Bool

	pollInterval time.Duration
}

// New creates a ring buffer holding exactly capacity samples.
// A capacity below one is raised to one.
func New[T any](capacity int) *RingBuffer[T] {
	capacity = max(capacity, 1)
	return &RingBuffer[T]{
		buffer:       make([]T, capacity),
		size:         uint64(capacity),
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval changes the producer back-off used by WriteBlocking.
// It must be called before the producer starts.
func (rb *RingBuffer[T]) SetPollInterval(d time.Duration) {
	if d > 0 {
		rb.pollInterval = d
	}
}

// Write copies as many samples as fit and returns how many were written.
// It returns ErrInsufficientSpace only when nothing could be written.
//
// This method must only be called by the producer.
func (rb *RingBuffer[T]) Write(data []T) (int, error) {
	dataLen := uint64(len(data))
	if dataLen == 0 {
		return 0, nil
	}

	toWrite := min(dataLen, rb.AvailableWrite())
	if toWrite == 0 {
		return 0, ErrInsufficientSpace
	}

	writePos := rb.writePos.Load()
	start := writePos % rb.size

	firstChunk := min(toWrite, rb.size-start)
	copy(rb.buffer[start:start+firstChunk], data[:firstChunk])
	if firstChunk < toWrite {
		// Write wraps around the buffer
		copy(rb.buffer[:toWrite-firstChunk], data[firstChunk:toWrite])
	}

	// Publish after the copy so the consumer never sees unwritten samples
	rb.writePos.Store(writePos + toWrite)

	return int(toWrite), nil
}

// WriteBlocking writes all of data, sleeping while the buffer is full.
// It returns early with ErrClosed if the buffer is closed while waiting.
//
// This method must only be called by the producer.
func (rb *RingBuffer[T]) WriteBlocking(data []T) (int, error) {
	written := 0
	for written < len(data) {
		if rb.closed.Load() {
			return written, ErrClosed
		}

		n, _ := rb.Write(data[written:])
		written += n

		if written < len(data) {
			time.Sleep(rb.pollInterval)
		}
	}
	return written, nil
}

// Read copies up to len(data) samples into data.
// It returns ErrInsufficientData if the buffer is empty.
// It never blocks.
//
// This method must only be called by the consumer.
func (rb *RingBuffer[T]) Read(data []T) (int, error) {
	dataLen := uint64(len(data))
	if dataLen == 0 {
		return 0, nil
	}

	available := rb.AvailableRead()
	if available == 0 {
		return 0, ErrInsufficientData
	}

	toRead := min(dataLen, available)

	readPos := rb.readPos.Load()
	start := readPos % rb.size

	firstChunk := min(toRead, rb.size-start)
	copy(data[:firstChunk], rb.buffer[start:start+firstChunk])
	if firstChunk < toRead {
		// Read wraps around the buffer
		copy(data[firstChunk:toRead], rb.buffer[:toRead-firstChunk])
	}

	rb.readPos.Store(readPos + toRead)

	return int(toRead), nil
}

// AvailableWrite returns the number of samples available for writing
func (rb *RingBuffer[T]) AvailableWrite() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return rb.size - (writePos - readPos)
}

// AvailableRead returns the number of samples available for reading
func (rb *RingBuffer[T]) AvailableRead() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return writePos - readPos
}

// Size returns the total capacity of the ring buffer in samples
func (rb *RingBuffer[T]) Size() uint64 {
	return rb.size
}

// Close wakes a producer blocked in WriteBlocking. Reads still drain
// whatever remains.
func (rb *RingBuffer[T]) Close() {
	rb.closed.Store(true)
}

// Closed reports whether Close was called.
func (rb *RingBuffer[T]) Closed() bool {
	return rb.closed.Load()
}

// Reset discards buffered samples and reopens the buffer.
// Neither producer nor consumer may be active during Reset.
func (rb *RingBuffer[T]) Reset() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)
	rb.closed.Store(false)
}
