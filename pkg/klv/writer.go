package klv

import (
	"bytes"
	"encoding/binary"
	"math"

	"klvviewer/internal/models"
)

// Writer appends triples to an in-memory container. Values are written with
// the widest encoding of their kind so every field round-trips exactly.
type Writer struct {
	buf bytes.Buffer
}

// Raw appends a triple with an arbitrary value
func (w *Writer) Raw(k Key, value []byte) {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(k))
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(value)))
	w.buf.Write(hdr[:])
	w.buf.Write(value)
}

// Uint appends an unsigned value on 4 bytes
func (w *Writer) Uint(k Key, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Raw(k, b[:])
}

// Flag appends a 0/1 value
func (w *Writer) Flag(k Key, v bool) {
	if v {
		w.Uint(k, 1)
	} else {
		w.Uint(k, 0)
	}
}

// Int appends a signed value on 8 bytes
func (w *Writer) Int(k Key, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.Raw(k, b[:])
}

// Float appends a float64 value
func (w *Writer) Float(k Key, v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.Raw(k, b[:])
}

// Text appends a string value
func (w *Writer) Text(k Key, v string) {
	w.Raw(k, []byte(v))
}

// Bytes returns the container written so far
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Encode serializes a complete container. The Compression field of meta is
// ignored in favour of c.
func Encode(meta models.Metadata, c Compression, blob []byte) []byte {
	var w Writer
	w.Flag(KeyColor, meta.Color)
	w.Uint(KeyHeight, meta.Height)
	w.Uint(KeyWidth, meta.Width)
	w.Uint(KeySizeInBytes, meta.SizeInBytes)
	w.Float(KeyColumnPixelSpacing, meta.ColumnPixelSpacing)
	w.Float(KeyRowPixelSpacing, meta.RowPixelSpacing)
	w.Int(KeyMinPixelValue, meta.MinPixelValue)
	w.Int(KeyMaxPixelValue, meta.MaxPixelValue)
	w.Float(KeySlope, meta.Slope)
	w.Float(KeyIntercept, meta.Intercept)
	w.Float(KeyWindowCenter, meta.WindowCenter)
	w.Float(KeyWindowWidth, meta.WindowWidth)
	w.Flag(KeyIsSigned, meta.IsSigned)
	w.Flag(KeyStretched, meta.Stretched)
	w.Text(KeyCompression, c.String())
	w.Uint(KeyOriginalHeight, meta.OriginalHeight)
	w.Uint(KeyOriginalWidth, meta.OriginalWidth)
	w.Raw(KeyImageBinary, blob)
	return w.Bytes()
}
