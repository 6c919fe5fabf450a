package pixels

import (
	"errors"
	"fmt"

	"klvviewer/pkg/klv"
)

var (
	ErrUnexpectedFormat  = errors.New("pixels: unexpected pixel format")
	ErrDimensionMismatch = errors.New("pixels: raster size does not match metadata")
	ErrCorruptBinary     = errors.New("pixels: cannot decompress image binary")
)

// FormatError is returned when a blob cannot be normalized into a PixelBuffer
type FormatError struct {
	Compression klv.Compression
	Detail      string
	Err         error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("decode %s: %s: %v", e.Compression, e.Detail, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func unexpected(c klv.Compression, format string, args ...any) error {
	return &FormatError{Compression: c, Detail: fmt.Sprintf(format, args...), Err: ErrUnexpectedFormat}
}
