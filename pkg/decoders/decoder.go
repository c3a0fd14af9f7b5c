package decoders

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/drgolem/dmm/pkg/types"
)

// MaxConsecutiveRetries bounds how many recoverable packet failures in a
// row are tolerated before the stream is considered broken.
const MaxConsecutiveRetries = 100

var (
	// ErrNoSupportedTrack is returned when every track has a null codec.
	ErrNoSupportedTrack = errors.New("no supported audio track")

	// ErrTooManyErrors is returned once MaxConsecutiveRetries is exceeded.
	ErrTooManyErrors = errors.New("too many consecutive decode errors")
)

// Result is the outcome of one DecodeNext call.
type Result int

const (
	// StreamEnd means the track is finished. No buffer is returned.
	StreamEnd Result = iota
	// Retry means this call produced nothing but the stream can continue.
	Retry
	// Decoded means a buffer was produced.
	Decoded
)

func (r Result) String() string {
	switch r {
	case StreamEnd:
		return "stream-end"
	case Retry:
		return "retry"
	case Decoded:
		return "decoded"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for recoverable decode errors.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// WithRegistry overrides the container registry used by Open.
func WithRegistry(r *Registry) Option {
	return func(d *Decoder) { d.registry = r }
}

// Decoder pulls packets of one selected track out of a container.
// A Decoder is owned by a single goroutine.
type Decoder struct {
	container Container
	source    io.Closer
	track     types.Track
	format    string
	duration  time.Duration
	retries   int

	registry *Registry
	logger   *slog.Logger
}

// Open probes src using the format hint and selects the first decodable
// track. On success the Decoder owns src and closes it on Close, if src
// implements io.Closer.
func Open(src io.ReadSeeker, hint string, opts ...Option) (*Decoder, error) {
	d := &Decoder{registry: DefaultRegistry, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}

	c, format, err := d.registry.Probe(src, hint)
	if err != nil {
		return nil, err
	}
	if err := d.init(c); err != nil {
		c.Close()
		return nil, err
	}
	d.format = format
	if closer, ok := src.(io.Closer); ok {
		d.source = closer
	}
	return d, nil
}

// New wraps an already opened container.
func New(c Container, opts ...Option) (*Decoder, error) {
	d := &Decoder{registry: DefaultRegistry, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.init(c); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) init(c Container) error {
	track, ok := selectTrack(c.Tracks())
	if !ok {
		return ErrNoSupportedTrack
	}
	d.container = c
	d.track = track
	d.duration = track.Params.TimeBase.CalcTime(track.Params.NFrames)
	return nil
}

// selectTrack returns the first track whose codec is not null.
func selectTrack(tracks []types.Track) (types.Track, bool) {
	for _, t := range tracks {
		if t.Codec != types.CodecNull {
			return t, true
		}
	}
	return types.Track{}, false
}

// Track returns the selected track.
func (d *Decoder) Track() types.Track { return d.track }

// Format returns the name of the probed container format.
func (d *Decoder) Format() string { return d.format }

// Duration returns the total track duration, or 0 if unknown.
func (d *Decoder) Duration() time.Duration { return d.duration }

// Metadata returns the most recent metadata revision seen so far.
func (d *Decoder) Metadata() (types.MetadataRevision, bool) {
	log := d.container.Metadata()
	if rev, ok := log.SkipToLatest(); ok {
		return rev, true
	}
	return log.Current()
}

// DecodeNext decodes the next packet of the selected track.
//
// It returns Decoded with a buffer valid until the next call, Retry when a
// packet was skipped, or StreamEnd at the end of the track. Any other
// failure is returned as an error and ends the track.
func (d *Decoder) DecodeNext() (Result, *types.AudioBuffer, types.Packet, error) {
	pkt, buf, err := d.container.NextPacket()

	// Consume metadata on every packet; only the latest revision is kept
	d.container.Metadata().SkipToLatest()

	if err != nil {
		return d.classify(err)
	}

	if pkt.TrackID != d.track.ID {
		return d.retry("packet for another track", "track_id", pkt.TrackID)
	}

	d.retries = 0
	return Decoded, buf, pkt, nil
}

func (d *Decoder) classify(err error) (Result, *types.AudioBuffer, types.Packet, error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return StreamEnd, nil, types.Packet{}, nil
	case errors.Is(err, types.ErrResetRequired):
		d.logger.Debug("Decoder reset required, ending track", "error", err)
		return StreamEnd, nil, types.Packet{}, nil
	}

	var pe *types.PacketError
	if errors.As(err, &pe) {
		d.logger.Warn("Decode error, will attempt to continue",
			"kind", pe.Kind.String(),
			"error", pe.Err)
		return d.retry("", "kind", pe.Kind.String())
	}

	return StreamEnd, nil, types.Packet{}, fmt.Errorf("decode %s: %w", d.format, err)
}

func (d *Decoder) retry(msg string, args ...any) (Result, *types.AudioBuffer, types.Packet, error) {
	d.retries++
	if d.retries > MaxConsecutiveRetries {
		return StreamEnd, nil, types.Packet{}, fmt.Errorf("%w: %d", ErrTooManyErrors, d.retries)
	}
	if msg != "" {
		d.logger.Debug(msg, args...)
	}
	return Retry, nil, types.Packet{}, nil
}

// Close releases the container and the source.
func (d *Decoder) Close() error {
	var errs []error
	if d.container != nil {
		errs = append(errs, d.container.Close())
	}
	if d.source != nil {
		errs = append(errs, d.source.Close())
		d.source = nil
	}
	return errors.Join(errs...)
}
