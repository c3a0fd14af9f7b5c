package wav

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/youpy/go-wav"

	"github.com/drgolem/dmm/pkg/types"
)

// PacketFrames is the number of frames read per packet.
const PacketFrames = 4096

var (
	ErrNotPCM              = errors.New("unsupported WAV format (only PCM supported)")
	ErrUnsupportedChannels = errors.New("unsupported WAV channel count")
	ErrUnsupportedBitDepth = errors.New("unsupported WAV bit depth")
)

// sampleReader is the subset of wav.Reader used for decoding, to allow testing
type sampleReader interface {
	ReadSamples(params ...uint32) ([]wav.Sample, error)
}

// Reader decodes PCM WAV data into interleaved integer packets.
type Reader struct {
	reader sampleReader
	track  types.Track
	buf    *types.AudioBuffer
	meta   types.MetadataLog
	pos    uint64
	bps    int
}

// Open parses the WAV header of r.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := wav.NewReader(asRIFFReader(r))
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV format: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		return nil, fmt.Errorf("%w: %d", ErrNotPCM, format.AudioFormat)
	}
	// go-wav samples carry at most two channels
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, format.NumChannels)
	}
	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, format.BitsPerSample)
	}

	rate := int(format.SampleRate)
	var nframes uint64
	if d, err := reader.Duration(); err == nil {
		nframes = uint64(math.Round(d.Seconds() * float64(rate)))
	}

	params := types.CodecParams{
		SampleRate:         rate,
		Channels:           int(format.NumChannels),
		BitsPerSample:      int(format.BitsPerSample),
		TimeBase:           types.NewTimeBase(rate),
		NFrames:            nframes,
		MaxFramesPerPacket: PacketFrames,
	}
	return newReader(reader, params), nil
}

func newReader(sr sampleReader, params types.CodecParams) *Reader {
	spec := types.SignalSpec{Rate: params.SampleRate, Channels: params.Channels}
	return &Reader{
		reader: sr,
		track:  types.Track{ID: 0, Codec: types.CodecPCM, Params: params},
		buf:    types.NewIntBuffer(spec, params.BitsPerSample, params.MaxFramesPerPacket, false),
		bps:    params.BitsPerSample,
	}
}

// Tracks returns the single PCM track.
func (r *Reader) Tracks() []types.Track {
	return []types.Track{r.track}
}

// Metadata returns the (always empty) metadata log.
func (r *Reader) Metadata() *types.MetadataLog {
	return &r.meta
}

// NextPacket reads up to PacketFrames frames.
// The returned buffer is reused by the next call.
func (r *Reader) NextPacket() (types.Packet, *types.AudioBuffer, error) {
	samples, err := r.reader.ReadSamples(uint32(r.buf.Capacity()))
	if len(samples) == 0 {
		if err == nil {
			err = io.EOF
		}
		return types.Packet{}, nil, err
	}

	channels := r.track.Params.Channels
	for i, s := range samples {
		for ch := 0; ch < channels; ch++ {
			v := s.Values[ch]
			if r.bps == 8 {
				// 8-bit WAV is unsigned
				v -= 128
			}
			r.buf.Int[i*channels+ch] = int32(v)
		}
	}
	r.buf.SetFrames(len(samples))

	pkt := types.Packet{
		TrackID:   r.track.ID,
		Timestamp: r.pos,
		Duration:  uint64(len(samples)),
	}
	r.pos += uint64(len(samples))

	// A short read with an error still delivers the samples; the error
	// surfaces on the next call
	return pkt, r.buf, nil
}

// Close is a no-op; the source is owned by the caller.
func (r *Reader) Close() error {
	return nil
}

type riffReader interface {
	io.Reader
	io.ReaderAt
}

// asRIFFReader adapts r to the io.Reader + io.ReaderAt pair go-wav expects.
func asRIFFReader(r io.ReadSeeker) riffReader {
	if rr, ok := r.(riffReader); ok {
		return rr
	}
	return &seekReaderAt{r: r}
}

// seekReaderAt implements ReadAt on top of Seek, restoring the read offset.
type seekReaderAt struct {
	r io.ReadSeeker
}

func (s *seekReaderAt) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	cur, err := s.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(s.r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if _, serr := s.r.Seek(cur, io.SeekStart); serr != nil && err == nil {
		err = serr
	}
	return n, err
}
