package vorbis

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/dmm/pkg/types"
)

// mockOggReader serves a fixed number of samples, then io.EOF
type mockOggReader struct {
	remaining int
	err       error
}

func (m *mockOggReader) Read(p []float32) (int, error) {
	if m.remaining == 0 {
		if m.err != nil {
			return 0, m.err
		}
		return 0, io.EOF
	}
	n := min(len(p), m.remaining)
	for i := 0; i < n; i++ {
		p[i] = 0.5
	}
	m.remaining -= n
	return n, nil
}

var stereoParams = types.CodecParams{
	SampleRate:         48000,
	Channels:           2,
	BitsPerSample:      32,
	TimeBase:           types.NewTimeBase(48000),
	MaxFramesPerPacket: PacketFrames,
}

func TestNextPacket(t *testing.T) {
	rd := newReader(&mockOggReader{remaining: PacketFrames*2 + 200}, stereoParams)

	pkt, buf, err := rd.NextPacket()
	require.NoError(t, err)
	assert.True(t, buf.IsFloat())
	assert.False(t, buf.Planar)
	assert.Equal(t, PacketFrames, buf.Frames())
	assert.Equal(t, uint64(PacketFrames), pkt.Duration)

	pkt, buf, err = rd.NextPacket()
	require.NoError(t, err)
	assert.Equal(t, 100, buf.Frames())
	assert.Equal(t, uint64(PacketFrames), pkt.Timestamp)
	assert.Equal(t, float32(0.5), buf.Float[0])

	_, _, err = rd.NextPacket()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestNextPacketDataError(t *testing.T) {
	rd := newReader(&mockOggReader{err: errors.New("invalid packet")}, stereoParams)
	_, _, err := rd.NextPacket()
	var pe *types.PacketError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, types.PacketData, pe.Kind)
}

func TestCommentRevision(t *testing.T) {
	rev := commentRevision("Xiph.Org libVorbis", []string{"title=So What", "Artist=Miles Davis", "malformed"})
	require.Len(t, rev.Tags, 3)

	vendor, _ := rev.Value("VENDOR")
	assert.Equal(t, "Xiph.Org libVorbis", vendor)
	title, _ := rev.Value("TITLE")
	assert.Equal(t, "So What", title)
	assert.Equal(t, "ARTIST", rev.Tags[2].Key)
}
