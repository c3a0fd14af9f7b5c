package aiff

import (
	"bytes"
	"errors"
	"io"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/dmm/pkg/types"
)

// mockPCMReader hands out a countdown of samples
type mockPCMReader struct {
	remaining int
}

func (m *mockPCMReader) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	n := min(len(buf.Data), m.remaining)
	for i := 0; i < n; i++ {
		buf.Data[i] = m.remaining - i
	}
	m.remaining -= n
	return n, nil
}

func TestNextPacket(t *testing.T) {
	format := &goaudio.Format{NumChannels: 2, SampleRate: 44100}
	params := types.CodecParams{
		SampleRate:         44100,
		Channels:           2,
		BitsPerSample:      24,
		TimeBase:           types.NewTimeBase(44100),
		MaxFramesPerPacket: 4,
	}
	rd := newReader(&mockPCMReader{remaining: 12}, format, params)

	pkt, buf, err := rd.NextPacket()
	require.NoError(t, err)
	assert.Equal(t, 4, buf.Frames())
	assert.Equal(t, 24, buf.BitDepth)
	assert.Equal(t, []int32{12, 11, 10, 9, 8, 7, 6, 5}, buf.Int[:8])
	assert.Equal(t, uint64(4), pkt.Duration)

	pkt, buf, err = rd.NextPacket()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Frames())
	assert.Equal(t, uint64(4), pkt.Timestamp)

	_, _, err = rd.NextPacket()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestOpenRejectsNonAIFF(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00WAVEfmt ")))
	assert.True(t, errors.Is(err, ErrNotAiffFile))
}
