package models

import (
	"errors"
	"fmt"
)

// ElementFormat is the numeric type of one sample in a PixelBuffer
type ElementFormat int

const (
	UInt8 ElementFormat = iota + 1
	Int8
	UInt16
	Int16
)

// String returns the wire tag of the format
func (f ElementFormat) String() string {
	switch f {
	case UInt8:
		return "Uint8"
	case Int8:
		return "Int8"
	case UInt16:
		return "Uint16"
	case Int16:
		return "Int16"
	default:
		return fmt.Sprintf("ElementFormat(%d)", int(f))
	}
}

// ParseElementFormat is the inverse of ElementFormat.String
func ParseElementFormat(s string) (ElementFormat, error) {
	for _, f := range []ElementFormat{UInt8, Int8, UInt16, Int16} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown element format %q", s)
}

// BitsPerSample returns 8 or 16
func (f ElementFormat) BitsPerSample() int {
	switch f {
	case UInt16, Int16:
		return 16
	default:
		return 8
	}
}

// Signed reports whether samples are two's complement
func (f ElementFormat) Signed() bool {
	return f == Int8 || f == Int16
}

// Channel counts a PixelBuffer may carry
const (
	MonoChannels  = 1
	ColorChannels = 4
)

var errInvalidBuffer = errors.New("invalid pixel buffer")

// PixelBuffer is a decoded raster. Exactly one of the typed slices is
// populated, the one matching Format. Samples are stored row-major and,
// for color data, interleaved RGBA.
//
// A buffer is owned by whoever received it; buffers of different requests
// never share memory.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Format   ElementFormat

	U8  []uint8
	I8  []int8
	U16 []uint16
	I16 []int16
}

// NewPixelBuffer allocates a zeroed buffer of the given shape
func NewPixelBuffer(width, height, channels int, format ElementFormat) *PixelBuffer {
	n := width * height * channels
	buf := &PixelBuffer{Width: width, Height: height, Channels: channels, Format: format}
	switch format {
	case UInt8:
		buf.U8 = make([]uint8, n)
	case Int8:
		buf.I8 = make([]int8, n)
	case UInt16:
		buf.U16 = make([]uint16, n)
	case Int16:
		buf.I16 = make([]int16, n)
	}
	return buf
}

// Len returns the number of samples held by the buffer
func (b *PixelBuffer) Len() int {
	switch b.Format {
	case UInt8:
		return len(b.U8)
	case Int8:
		return len(b.I8)
	case UInt16:
		return len(b.U16)
	case Int16:
		return len(b.I16)
	default:
		return 0
	}
}

// Sample returns sample i widened to int
func (b *PixelBuffer) Sample(i int) int {
	switch b.Format {
	case UInt8:
		return int(b.U8[i])
	case Int8:
		return int(b.I8[i])
	case UInt16:
		return int(b.U16[i])
	case Int16:
		return int(b.I16[i])
	default:
		panic("pixel buffer without format")
	}
}

// Resolution returns the raster size
func (b *PixelBuffer) Resolution() Resolution {
	return Resolution{Width: b.Width, Height: b.Height}
}

// IsColor reports whether the buffer holds RGBA samples
func (b *PixelBuffer) IsColor() bool {
	return b.Channels == ColorChannels
}

// Validate checks the buffer shape invariants
func (b *PixelBuffer) Validate() error {
	if b.Channels != MonoChannels && b.Channels != ColorChannels {
		return fmt.Errorf("%w: %d channels", errInvalidBuffer, b.Channels)
	}
	if b.Channels == ColorChannels && b.Format != UInt8 {
		return fmt.Errorf("%w: color data must be %s, got %s", errInvalidBuffer, UInt8, b.Format)
	}
	want := b.Width * b.Height * b.Channels
	if got := b.Len(); got != want {
		return fmt.Errorf("%w: %d samples for %dx%dx%d", errInvalidBuffer, got, b.Width, b.Height, b.Channels)
	}
	return nil
}
