package flac

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/drgolem/dmm/pkg/types"
)

// frameParser is the subset of flac.Stream used for decoding, to allow testing
type frameParser interface {
	ParseNext() (*frame.Frame, error)
}

// Reader decodes FLAC frames into planar integer packets.
type Reader struct {
	stream frameParser
	track  types.Track
	buf    *types.AudioBuffer
	meta   types.MetadataLog
	pos    uint64
}

// Open parses the FLAC metadata blocks of r. A leading ID3v2 tag is skipped.
func Open(r io.ReadSeeker) (*Reader, error) {
	if err := skipID3v2(r); err != nil {
		return nil, fmt.Errorf("failed to skip ID3v2 tag: %w", err)
	}

	stream, err := flac.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	rate := int(info.SampleRate)
	maxBlock := int(info.BlockSizeMax)
	if maxBlock == 0 {
		maxBlock = 4096
	}

	params := types.CodecParams{
		SampleRate:         rate,
		Channels:           int(info.NChannels),
		BitsPerSample:      int(info.BitsPerSample),
		TimeBase:           types.NewTimeBase(rate),
		NFrames:            info.NSamples,
		MaxFramesPerPacket: maxBlock,
	}
	rd := newReader(stream, params)

	for _, block := range stream.Blocks {
		if vc, ok := block.Body.(*meta.VorbisComment); ok {
			rd.meta.Push(vorbisCommentRevision(vc))
		}
	}
	return rd, nil
}

func newReader(stream frameParser, params types.CodecParams) *Reader {
	spec := types.SignalSpec{Rate: params.SampleRate, Channels: params.Channels}
	return &Reader{
		stream: stream,
		track:  types.Track{ID: 0, Codec: types.CodecFLAC, Params: params},
		buf:    types.NewIntBuffer(spec, params.BitsPerSample, params.MaxFramesPerPacket, true),
	}
}

func (r *Reader) Tracks() []types.Track         { return []types.Track{r.track} }
func (r *Reader) Metadata() *types.MetadataLog { return &r.meta }
func (r *Reader) Close() error                 { return nil }

// NextPacket decodes the next FLAC frame.
//
// A frame that fails to parse is reported as a data error so the caller can
// continue with the following frame. A frame whose channel layout differs
// from the stream info requires a decoder reset.
func (r *Reader) NextPacket() (types.Packet, *types.AudioBuffer, error) {
	f, err := r.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return types.Packet{}, nil, err
		}
		return types.Packet{}, nil, &types.PacketError{Kind: types.PacketData, Err: err}
	}

	channels := r.track.Params.Channels
	if len(f.Subframes) != channels {
		return types.Packet{}, nil, fmt.Errorf("%w: frame has %d channels, stream has %d",
			types.ErrResetRequired, len(f.Subframes), channels)
	}

	blockSize := int(f.BlockSize)
	r.buf.Grow(blockSize)
	capacity := r.buf.Capacity()
	for ch, sub := range f.Subframes {
		n := min(blockSize, len(sub.Samples))
		copy(r.buf.Int[ch*capacity:ch*capacity+n], sub.Samples[:n])
	}
	r.buf.SetFrames(blockSize)

	pkt := types.Packet{TrackID: r.track.ID, Timestamp: r.pos, Duration: uint64(blockSize)}
	r.pos += uint64(blockSize)
	return pkt, r.buf, nil
}

func vorbisCommentRevision(vc *meta.VorbisComment) types.MetadataRevision {
	rev := types.MetadataRevision{Tags: make([]types.Tag, 0, len(vc.Tags))}
	for _, kv := range vc.Tags {
		rev.Tags = append(rev.Tags, types.Tag{Key: kv[0], Value: kv[1]})
	}
	return rev
}

// skipID3v2 skips an ID3v2 tag if present at the start of the file.
// Some FLAC files have ID3v2 tags prepended, which the FLAC decoder can't handle.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	if n < 10 || string(header[0:3]) != "ID3" {
		_, err = r.Seek(0, io.SeekStart)
		return err
	}

	// ID3v2 size is a syncsafe integer in bytes 6-9
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])

	_, err = r.Seek(10+size, io.SeekStart)
	return err
}
