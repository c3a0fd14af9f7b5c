package mp3

import (
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/drgolem/dmm/pkg/types"
)

const (
	// PacketFrames matches the MPEG-1 Layer III frame size.
	PacketFrames = 1152

	// go-mp3 always produces 16-bit stereo little-endian PCM
	channels      = 2
	bitsPerSample = 16
	bytesPerFrame = channels * bitsPerSample / 8
)

// mp3Reader is an interface for gomp3.Decoder to allow testing
type mp3Reader interface {
	Read([]byte) (int, error)
}

// Reader decodes MP3 streams into interleaved 16-bit packets.
type Reader struct {
	dec   mp3Reader
	track types.Track
	raw   []byte
	buf   *types.AudioBuffer
	meta  types.MetadataLog
	pos   uint64
	eof   bool
}

// Open decodes the first MP3 frame header of r.
func Open(r io.ReadSeeker) (*Reader, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	var nframes uint64
	if length := dec.Length(); length > 0 {
		nframes = uint64(length) / bytesPerFrame
	}

	params := types.CodecParams{
		SampleRate:         dec.SampleRate(),
		Channels:           channels,
		BitsPerSample:      bitsPerSample,
		TimeBase:           types.NewTimeBase(dec.SampleRate()),
		NFrames:            nframes,
		MaxFramesPerPacket: PacketFrames,
	}
	return newReader(dec, params), nil
}

func newReader(dec mp3Reader, params types.CodecParams) *Reader {
	spec := types.SignalSpec{Rate: params.SampleRate, Channels: params.Channels}
	return &Reader{
		dec:   dec,
		track: types.Track{ID: 0, Codec: types.CodecMP3, Params: params},
		raw:   make([]byte, params.MaxFramesPerPacket*bytesPerFrame),
		buf:   types.NewIntBuffer(spec, bitsPerSample, params.MaxFramesPerPacket, false),
	}
}

func (r *Reader) Tracks() []types.Track         { return []types.Track{r.track} }
func (r *Reader) Metadata() *types.MetadataLog { return &r.meta }
func (r *Reader) Close() error                 { return nil }

// NextPacket decodes one MP3 frame worth of PCM.
func (r *Reader) NextPacket() (types.Packet, *types.AudioBuffer, error) {
	if r.eof {
		return types.Packet{}, nil, io.EOF
	}

	n, err := io.ReadFull(r.dec, r.raw)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Final partial packet
		r.eof = true
	case errors.Is(err, io.EOF):
		return types.Packet{}, nil, io.EOF
	default:
		return types.Packet{}, nil, fmt.Errorf("mp3 decode: %w", err)
	}

	frames := n / bytesPerFrame
	if frames == 0 {
		return types.Packet{}, nil, io.EOF
	}
	for i := 0; i < frames*channels; i++ {
		lo := uint16(r.raw[2*i])
		hi := uint16(r.raw[2*i+1])
		r.buf.Int[i] = int32(int16(lo | hi<<8))
	}
	r.buf.SetFrames(frames)

	pkt := types.Packet{TrackID: r.track.ID, Timestamp: r.pos, Duration: uint64(frames)}
	r.pos += uint64(frames)
	return pkt, r.buf, nil
}
