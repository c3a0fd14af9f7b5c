package aiff

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/drgolem/dmm/pkg/types"
)

// PacketFrames is the number of frames read per packet.
const PacketFrames = 4096

var (
	ErrNotAiffFile           = errors.New("not a valid AIFF file")
	ErrUnsupportedAiffLayout = errors.New("unsupported AIFF layout")
)

// pcmReader is an interface for aiff.Decoder to allow testing
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// Reader decodes AIFF PCM data into interleaved integer packets.
type Reader struct {
	dec    pcmReader
	track  types.Track
	intBuf *goaudio.IntBuffer
	buf    *types.AudioBuffer
	meta   types.MetadataLog
	pos    uint64
}

// Open validates the AIFF header of r and reads its COMM chunk.
func Open(r io.ReadSeeker) (*Reader, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotAiffFile
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil || format.NumChannels < 1 {
		return nil, ErrUnsupportedAiffLayout
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit", ErrUnsupportedAiffLayout, dec.BitDepth)
	}

	params := types.CodecParams{
		SampleRate:         format.SampleRate,
		Channels:           format.NumChannels,
		BitsPerSample:      int(dec.BitDepth),
		TimeBase:           types.NewTimeBase(format.SampleRate),
		NFrames:            uint64(dec.NumSampleFrames),
		MaxFramesPerPacket: PacketFrames,
	}
	return newReader(dec, format, params), nil
}

func newReader(dec pcmReader, format *goaudio.Format, params types.CodecParams) *Reader {
	spec := types.SignalSpec{Rate: params.SampleRate, Channels: params.Channels}
	return &Reader{
		dec:   dec,
		track: types.Track{ID: 0, Codec: types.CodecPCM, Params: params},
		intBuf: &goaudio.IntBuffer{
			Data:           make([]int, params.MaxFramesPerPacket*params.Channels),
			Format:         format,
			SourceBitDepth: params.BitsPerSample,
		},
		buf: types.NewIntBuffer(spec, params.BitsPerSample, params.MaxFramesPerPacket, false),
	}
}

func (r *Reader) Tracks() []types.Track         { return []types.Track{r.track} }
func (r *Reader) Metadata() *types.MetadataLog { return &r.meta }
func (r *Reader) Close() error                 { return nil }

// NextPacket reads up to PacketFrames frames.
func (r *Reader) NextPacket() (types.Packet, *types.AudioBuffer, error) {
	n, err := r.dec.PCMBuffer(r.intBuf)
	channels := r.track.Params.Channels
	frames := n / channels
	if frames == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return types.Packet{}, nil, err
	}

	for i, v := range r.intBuf.Data[:frames*channels] {
		r.buf.Int[i] = int32(v)
	}
	r.buf.SetFrames(frames)

	pkt := types.Packet{TrackID: r.track.ID, Timestamp: r.pos, Duration: uint64(frames)}
	r.pos += uint64(frames)
	return pkt, r.buf, nil
}
