package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CodecType identifies the codec of a track inside a container.
type CodecType int

const (
	// CodecNull marks a track that cannot be decoded (cover art, data streams).
	CodecNull CodecType = iota
	CodecPCM
	CodecMP3
	CodecFLAC
	CodecVorbis
)

func (c CodecType) String() string {
	switch c {
	case CodecPCM:
		return "pcm"
	case CodecMP3:
		return "mp3"
	case CodecFLAC:
		return "flac"
	case CodecVorbis:
		return "vorbis"
	default:
		return "null"
	}
}

// TimeBase converts packet timestamps (in frames) into wall-clock time.
type TimeBase struct {
	Numer uint32
	Denom uint32
}

// NewTimeBase returns the 1/sampleRate time base used by all PCM-like codecs.
func NewTimeBase(sampleRate int) TimeBase {
	if sampleRate <= 0 {
		return TimeBase{}
	}
	return TimeBase{Numer: 1, Denom: uint32(sampleRate)}
}

// CalcTime returns the duration of ts time base units.
// A zero time base yields zero.
func (tb TimeBase) CalcTime(ts uint64) time.Duration {
	if tb.Denom == 0 {
		return 0
	}
	secs := ts * uint64(tb.Numer) / uint64(tb.Denom)
	rem := ts * uint64(tb.Numer) % uint64(tb.Denom)
	return time.Duration(secs)*time.Second +
		time.Duration(rem*uint64(time.Second)/uint64(tb.Denom))
}

// CodecParams describes the decoded signal of a track.
type CodecParams struct {
	SampleRate    int
	Channels      int
	BitsPerSample int // significant bits for integer codecs, 32 for float
	TimeBase      TimeBase
	NFrames       uint64 // total frames, 0 when unknown

	// MaxFramesPerPacket is the largest packet the decoder produces and
	// becomes the capacity of the decode buffer.
	MaxFramesPerPacket int
}

// Spec returns the signal spec of the decoded stream.
func (p CodecParams) Spec() SignalSpec {
	return SignalSpec{Rate: p.SampleRate, Channels: p.Channels}
}

// Track is one elementary stream inside a container.
type Track struct {
	ID     uint32
	Codec  CodecType
	Params CodecParams
}

// Packet describes one decoded unit of a track.
type Packet struct {
	TrackID   uint32
	Timestamp uint64 // in TimeBase units
	Duration  uint64 // in TimeBase units
}

// SignalSpec is the rate and channel layout a hardware stream is opened with.
type SignalSpec struct {
	Rate     int
	Channels int
}

func (s SignalSpec) String() string {
	return fmt.Sprintf("%dHz:%dch", s.Rate, s.Channels)
}

// AudioBuffer holds one packet of decoded samples in the codec's native
// representation. Exactly one of Int or Float is populated.
//
// Planar buffers store channel ch, frame i at ch*Capacity()+i.
// Interleaved buffers store it at i*Channels+ch.
type AudioBuffer struct {
	Spec     SignalSpec
	BitDepth int // significant bits of Int samples
	Planar   bool
	Int      []int32
	Float    []float32

	frames   int
	capacity int
}

// NewIntBuffer allocates an integer buffer for capacity frames.
func NewIntBuffer(spec SignalSpec, bitDepth, capacity int, planar bool) *AudioBuffer {
	return &AudioBuffer{
		Spec:     spec,
		BitDepth: bitDepth,
		Planar:   planar,
		Int:      make([]int32, capacity*spec.Channels),
		capacity: capacity,
	}
}

// NewFloatBuffer allocates a float buffer for capacity frames.
func NewFloatBuffer(spec SignalSpec, capacity int, planar bool) *AudioBuffer {
	return &AudioBuffer{
		Spec:     spec,
		BitDepth: 32,
		Planar:   planar,
		Float:    make([]float32, capacity*spec.Channels),
		capacity: capacity,
	}
}

// Frames returns the number of valid frames in the buffer.
func (b *AudioBuffer) Frames() int { return b.frames }

// Capacity returns the maximum number of frames the buffer holds.
func (b *AudioBuffer) Capacity() int { return b.capacity }

// IsFloat reports whether the samples are stored in Float.
func (b *AudioBuffer) IsFloat() bool { return b.Float != nil }

// SetFrames sets the number of valid frames, clamped to the capacity.
func (b *AudioBuffer) SetFrames(n int) {
	b.frames = max(0, min(n, b.capacity))
}

// Grow reallocates the buffer when capacity frames do not fit.
// Existing samples are not preserved.
func (b *AudioBuffer) Grow(capacity int) {
	if capacity <= b.capacity {
		return
	}
	if b.IsFloat() {
		b.Float = make([]float32, capacity*b.Spec.Channels)
	} else {
		b.Int = make([]int32, capacity*b.Spec.Channels)
	}
	b.capacity = capacity
	b.frames = 0
}

// Tag is a single metadata key/value pair.
type Tag struct {
	Key   string
	Value string
}

// MetadataRevision is one snapshot of container metadata.
type MetadataRevision struct {
	Tags []Tag
}

// Value returns the first tag value for key, ignoring case.
func (r MetadataRevision) Value(key string) (string, bool) {
	for _, t := range r.Tags {
		if strings.EqualFold(t.Key, key) {
			return t.Value, true
		}
	}
	return "", false
}

// MetadataLog is a queue of metadata revisions produced while demuxing.
// It is owned by the decoding goroutine.
type MetadataLog struct {
	revisions []MetadataRevision
	current   MetadataRevision
	seen      bool
}

// Push appends a new revision.
func (l *MetadataLog) Push(rev MetadataRevision) {
	l.revisions = append(l.revisions, rev)
}

// Pending returns the number of revisions not yet consumed.
func (l *MetadataLog) Pending() int { return len(l.revisions) }

// SkipToLatest discards every queued revision except the newest one,
// which becomes current. It reports whether anything was consumed.
func (l *MetadataLog) SkipToLatest() (MetadataRevision, bool) {
	if len(l.revisions) == 0 {
		return l.current, false
	}
	l.current = l.revisions[len(l.revisions)-1]
	l.seen = true
	l.revisions = l.revisions[:0]
	return l.current, true
}

// Current returns the last consumed revision.
func (l *MetadataLog) Current() (MetadataRevision, bool) {
	return l.current, l.seen
}

// PacketErrorKind classifies a recoverable per-packet failure.
type PacketErrorKind int

const (
	PacketIO PacketErrorKind = iota
	PacketData
)

func (k PacketErrorKind) String() string {
	if k == PacketIO {
		return "io"
	}
	return "data"
}

// PacketError is a failure confined to a single packet. The stream can
// continue with the next packet.
type PacketError struct {
	Kind PacketErrorKind
	Err  error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("%s error in packet: %v", e.Kind, e.Err)
}

func (e *PacketError) Unwrap() error { return e.Err }

var (
	// ErrResetRequired indicates the stream changed shape mid-track (for
	// example a new logical stream with a different signal). The track ends.
	ErrResetRequired = errors.New("decoder reset required")

	// ErrInsufficientSpace indicates the ringbuffer doesn't have enough space for the write operation
	ErrInsufficientSpace = errors.New("insufficient space in ringbuffer")

	// ErrInsufficientData indicates the ringbuffer doesn't have enough data for the read operation
	ErrInsufficientData = errors.New("insufficient data in ringbuffer")
)

// PlaybackStatus holds a snapshot of playback information.
type PlaybackStatus struct {
	Title           string        // display name of the current track
	State           string        // "stopped", "paused" or "playing"
	SampleRate      int           // Audio sample rate in Hz (e.g., 44100, 48000)
	Channels        int           // Number of audio channels (1=mono, 2=stereo)
	SampleFormat    string        // device sample format (u8, s16, s32, f32)
	Position        time.Duration // timestamp of the last decoded packet
	Duration        time.Duration // total track duration, 0 if unknown
	BufferedSamples uint64        // samples decoded but not yet played (in-flight)
	Underruns       uint64        // callbacks that had to be padded with silence
}

// PlaybackMonitor is an interface for types that can report playback status.
type PlaybackMonitor interface {
	GetPlaybackStatus() PlaybackStatus
}
