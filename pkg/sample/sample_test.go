package sample

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilence(t *testing.T) {
	assert.Equal(t, uint8(0x80), Silence[uint8]())
	assert.Equal(t, int16(0), Silence[int16]())
	assert.Equal(t, int32(0), Silence[int32]())
	assert.Equal(t, float32(0), Silence[float32]())
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, U8, FormatOf[uint8]())
	assert.Equal(t, S16, FormatOf[int16]())
	assert.Equal(t, S32, FormatOf[int32]())
	assert.Equal(t, F32, FormatOf[float32]())
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"u8", U8},
		{"S16", S16},
		{" s32 ", S32},
		{"float32", F32},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.want, mustParse(t, got.String()))
	}

	_, err := ParseFormat("s24")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func mustParse(t *testing.T, s string) Format {
	t.Helper()
	f, err := ParseFormat(s)
	require.NoError(t, err)
	return f
}

func TestIntConverter(t *testing.T) {
	toS16 := IntConverter[int16]()
	assert.Equal(t, int16(1000), toS16(1000, 16))
	assert.Equal(t, int16(-32768), toS16(-32768, 16))
	// 24-bit full scale maps to 16-bit full scale
	assert.Equal(t, int16(32767), toS16(8388607, 24))

	toU8 := IntConverter[uint8]()
	assert.Equal(t, uint8(0x80), toU8(0, 16))
	assert.Equal(t, uint8(0xFF), toU8(32767, 16))
	assert.Equal(t, uint8(0x00), toU8(-32768, 16))

	toS32 := IntConverter[int32]()
	assert.Equal(t, int32(1<<16), toS32(1, 16))

	toF32 := IntConverter[float32]()
	assert.InDelta(t, -1.0, toF32(-32768, 16), 1e-6)
	assert.InDelta(t, 0.5, toF32(16384, 16), 1e-6)
}

func TestFloatConverter(t *testing.T) {
	toS16 := FloatConverter[int16]()
	assert.Equal(t, int16(32767), toS16(1))
	assert.Equal(t, int16(32767), toS16(4)) // clamped
	assert.Equal(t, int16(-32767), toS16(-1))
	assert.Equal(t, int16(0), toS16(float32(math.NaN())))

	toU8 := FloatConverter[uint8]()
	assert.Equal(t, uint8(0x80), toU8(0))
	assert.Equal(t, uint8(255), toU8(1))
	assert.Equal(t, uint8(1), toU8(-1))

	toF32 := FloatConverter[float32]()
	assert.Equal(t, float32(0.25), toF32(0.25))
}

func TestEncodeDecode(t *testing.T) {
	s16 := []int16{0, 1, -1, 32767, -32768}
	buf := make([]byte, len(s16)*S16.BytesPerSample())
	require.Equal(t, len(buf), Encode(buf, s16))
	assert.Equal(t, []byte{0, 0, 1, 0, 0xFF, 0xFF, 0xFF, 0x7F, 0x00, 0x80}, buf)

	back := make([]int16, len(s16))
	require.Equal(t, len(s16), Decode(back, buf))
	assert.Equal(t, s16, back)

	f32 := []float32{0, 0.5, -1}
	fbuf := make([]byte, len(f32)*F32.BytesPerSample())
	require.Equal(t, len(fbuf), Encode(fbuf, f32))
	fback := make([]float32, len(f32))
	Decode(fback, fbuf)
	assert.Equal(t, f32, fback)

	u8 := []uint8{0x80, 0x00, 0xFF}
	ubuf := make([]byte, 3)
	require.Equal(t, 3, Encode(ubuf, u8))
	assert.Equal(t, []byte{0x80, 0x00, 0xFF}, ubuf)
}
