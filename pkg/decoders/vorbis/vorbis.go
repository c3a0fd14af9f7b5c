package vorbis

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jfreymuth/oggvorbis"

	"github.com/drgolem/dmm/pkg/types"
)

// PacketFrames is the number of frames read per packet.
const PacketFrames = 2048

// oggReader is an interface for oggvorbis.Reader to allow testing
type oggReader interface {
	Read([]float32) (int, error)
}

// Reader decodes Ogg Vorbis streams into interleaved float packets.
type Reader struct {
	dec   oggReader
	track types.Track
	buf   *types.AudioBuffer
	meta  types.MetadataLog
	pos   uint64
}

// Open reads the Vorbis identification and comment headers of r.
func Open(r io.ReadSeeker) (*Reader, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create vorbis decoder: %w", err)
	}

	var nframes uint64
	if length := dec.Length(); length > 0 {
		nframes = uint64(length)
	}

	params := types.CodecParams{
		SampleRate:         dec.SampleRate(),
		Channels:           dec.Channels(),
		BitsPerSample:      32,
		TimeBase:           types.NewTimeBase(dec.SampleRate()),
		NFrames:            nframes,
		MaxFramesPerPacket: PacketFrames,
	}
	rd := newReader(dec, params)

	comments := dec.CommentHeader()
	rd.meta.Push(commentRevision(comments.Vendor, comments.Comments))
	return rd, nil
}

func newReader(dec oggReader, params types.CodecParams) *Reader {
	spec := types.SignalSpec{Rate: params.SampleRate, Channels: params.Channels}
	return &Reader{
		dec:   dec,
		track: types.Track{ID: 0, Codec: types.CodecVorbis, Params: params},
		buf:   types.NewFloatBuffer(spec, params.MaxFramesPerPacket, false),
	}
}

func (r *Reader) Tracks() []types.Track         { return []types.Track{r.track} }
func (r *Reader) Metadata() *types.MetadataLog { return &r.meta }
func (r *Reader) Close() error                 { return nil }

// NextPacket decodes up to PacketFrames frames.
func (r *Reader) NextPacket() (types.Packet, *types.AudioBuffer, error) {
	n, err := r.dec.Read(r.buf.Float)
	channels := r.track.Params.Channels
	frames := n / channels
	if frames == 0 {
		if err == nil {
			err = io.EOF
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			err = &types.PacketError{Kind: types.PacketData, Err: err}
		}
		return types.Packet{}, nil, err
	}
	r.buf.SetFrames(frames)

	pkt := types.Packet{TrackID: r.track.ID, Timestamp: r.pos, Duration: uint64(frames)}
	r.pos += uint64(frames)
	return pkt, r.buf, nil
}

// commentRevision converts "KEY=value" vorbis comments into tags.
func commentRevision(vendor string, comments []string) types.MetadataRevision {
	rev := types.MetadataRevision{}
	if vendor != "" {
		rev.Tags = append(rev.Tags, types.Tag{Key: "VENDOR", Value: vendor})
	}
	for _, c := range comments {
		key, value, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		rev.Tags = append(rev.Tags, types.Tag{Key: strings.ToUpper(key), Value: value})
	}
	return rev
}
