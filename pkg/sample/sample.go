// Package sample defines the closed set of device sample formats and the
// conversions from decoded samples into them.
package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownFormat is returned by ParseFormat for unrecognised names.
var ErrUnknownFormat = errors.New("unknown sample format")

// Format is a device sample format.
type Format int

const (
	// FormatInvalid is the zero value and is never negotiated.
	FormatInvalid Format = iota
	U8                   // unsigned 8-bit, silence is 0x80
	S16                  // signed 16-bit little-endian
	S32                  // signed 32-bit little-endian
	F32                  // IEEE float 32-bit little-endian
)

func (f Format) String() string {
	switch f {
	case U8:
		return "u8"
	case S16:
		return "s16"
	case S32:
		return "s32"
	case F32:
		return "f32"
	default:
		return "invalid"
	}
}

// BytesPerSample returns the encoded width of one sample.
func (f Format) BytesPerSample() int {
	switch f {
	case U8:
		return 1
	case S16:
		return 2
	case S32, F32:
		return 4
	default:
		return 0
	}
}

// ParseFormat parses names like "s16", "S16", "f32" or "float32".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8", "uint8":
		return U8, nil
	case "s16", "int16", "i16":
		return S16, nil
	case "s32", "int32", "i32":
		return S32, nil
	case "f32", "float32", "float":
		return F32, nil
	}
	return FormatInvalid, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Sample is a device sample type. The set is closed: every instantiation
// corresponds to exactly one Format.
type Sample interface {
	uint8 | int16 | int32 | float32
}

// FormatOf returns the Format matching T.
func FormatOf[T Sample]() Format {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return U8
	case int16:
		return S16
	case int32:
		return S32
	case float32:
		return F32
	}
	return FormatInvalid
}

// Silence returns the value of T that represents zero amplitude.
func Silence[T Sample]() T {
	var zero T
	if _, ok := any(zero).(uint8); ok {
		return T(0x80)
	}
	return zero
}

// IntConverter returns a function converting an integer sample with the
// given number of significant bits into T. The type is resolved once.
func IntConverter[T Sample]() func(v int32, bits int) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return func(v int32, bits int) T { return T(uint8(widen(v, bits)>>24) + 0x80) }
	case int16:
		return func(v int32, bits int) T { return T(int16(widen(v, bits) >> 16)) }
	case int32:
		return func(v int32, bits int) T { return T(widen(v, bits)) }
	default:
		return func(v int32, bits int) T { return T(float32(widen(v, bits)) / (1 << 31)) }
	}
}

// FloatConverter returns a function converting a float sample in [-1, 1]
// into T. Integer targets are clamped.
func FloatConverter[T Sample]() func(v float32) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return func(v float32) T { return T(uint8(int32(math.Round(float64(clamp(v))*127)) + 0x80)) }
	case int16:
		return func(v float32) T { return T(int16(math.Round(float64(clamp(v)) * math.MaxInt16))) }
	case int32:
		return func(v float32) T { return T(int32(math.Round(float64(clamp(v)) * math.MaxInt32))) }
	default:
		return func(v float32) T { return T(v) }
	}
}

// widen left-aligns a sample of bits significant bits into 32 bits.
func widen(v int32, bits int) int32 {
	if bits <= 0 || bits >= 32 {
		return v
	}
	return v << uint(32-bits)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	if math.IsNaN(float64(v)) {
		return 0
	}
	return v
}

// Encode writes src into dst as little-endian bytes and returns the number
// of bytes written. dst must hold len(src)*BytesPerSample bytes.
func Encode[T Sample](dst []byte, src []T) int {
	switch s := any(src).(type) {
	case []uint8:
		return copy(dst, s)
	case []int16:
		for i, v := range s {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
		}
		return len(s) * 2
	case []int32:
		for i, v := range s {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(v))
		}
		return len(s) * 4
	case []float32:
		for i, v := range s {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
		}
		return len(s) * 4
	}
	return 0
}

// Decode reads little-endian samples from src into dst and returns the
// number of samples decoded.
func Decode[T Sample](dst []T, src []byte) int {
	switch d := any(dst).(type) {
	case []uint8:
		return copy(d, src)
	case []int16:
		n := min(len(d), len(src)/2)
		for i := range n {
			d[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
		}
		return n
	case []int32:
		n := min(len(d), len(src)/4)
		for i := range n {
			d[i] = int32(binary.LittleEndian.Uint32(src[i*4:]))
		}
		return n
	case []float32:
		n := min(len(d), len(src)/4)
		for i := range n {
			d[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
		return n
	}
	return 0
}
