package klv

import (
	"encoding/binary"
	"math"

	"klvviewer/internal/models"
)

const headerSize = 8

// Container is a parsed KLV container
type Container struct {
	Metadata    models.Metadata
	Compression Compression

	// Binary is the compressed pixel blob. It is a copy and does not alias
	// the parsed input.
	Binary []byte
}

// field is one raw value located in the input
type field struct {
	value  []byte
	offset int
}

// Parse reads a container. The input is not retained.
func Parse(data []byte) (*Container, error) {
	var fields [numKeys]*field

	for off := 0; off < len(data); {
		if len(data)-off < headerSize {
			return nil, &ParseError{Key: Key(math.MaxUint32), Offset: off, Err: ErrTruncated}
		}
		key := Key(binary.BigEndian.Uint32(data[off:]))
		length := int(binary.BigEndian.Uint32(data[off+4:]))
		start := off + headerSize
		if length > len(data)-start {
			return nil, &ParseError{Key: key, Offset: off, Err: ErrTruncated}
		}
		if !key.known() {
			return nil, &ParseError{Key: key, Offset: off, Err: ErrUnknownKey}
		}
		if fields[key] != nil {
			return nil, &ParseError{Key: key, Offset: off, Err: ErrDuplicateKey}
		}
		fields[key] = &field{value: data[start : start+length], offset: off}
		off = start + length
	}

	for k := range fields {
		if fields[k] == nil {
			return nil, &ParseError{Key: Key(k), Offset: -1, Err: ErrMissingKey}
		}
	}

	d := decoder{fields: &fields}
	c := &Container{}
	m := &c.Metadata

	m.Color = d.flag(KeyColor)
	m.Height = d.uint32(KeyHeight)
	m.Width = d.uint32(KeyWidth)
	m.SizeInBytes = d.uint32(KeySizeInBytes)
	m.ColumnPixelSpacing = d.float(KeyColumnPixelSpacing)
	m.RowPixelSpacing = d.float(KeyRowPixelSpacing)
	m.MinPixelValue = d.int(KeyMinPixelValue)
	m.MaxPixelValue = d.int(KeyMaxPixelValue)
	m.Slope = d.float(KeySlope)
	m.Intercept = d.float(KeyIntercept)
	m.WindowCenter = d.float(KeyWindowCenter)
	m.WindowWidth = d.float(KeyWindowWidth)
	m.IsSigned = d.flag(KeyIsSigned)
	m.Stretched = d.flag(KeyStretched)
	m.Compression = string(fields[KeyCompression].value)
	m.OriginalHeight = d.uint32(KeyOriginalHeight)
	m.OriginalWidth = d.uint32(KeyOriginalWidth)
	if d.err != nil {
		return nil, d.err
	}

	compression, err := ParseCompression(m.Compression)
	if err != nil {
		return nil, &ParseError{Key: KeyCompression, Offset: fields[KeyCompression].offset, Err: err}
	}
	c.Compression = compression
	c.Binary = append([]byte(nil), fields[KeyImageBinary].value...)

	return c, nil
}

// decoder converts raw field values, keeping the first error
type decoder struct {
	fields *[numKeys]*field
	err    error
}

func (d *decoder) fail(k Key, err error) {
	if d.err == nil {
		d.err = &ParseError{Key: k, Offset: d.fields[k].offset, Err: err}
	}
}

func (d *decoder) uint(k Key) uint64 {
	b := d.fields[k].value
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	case 8:
		return binary.BigEndian.Uint64(b)
	default:
		d.fail(k, ErrBadLength)
		return 0
	}
}

func (d *decoder) uint32(k Key) uint32 {
	v := d.uint(k)
	if v > math.MaxUint32 {
		d.fail(k, ErrOutOfRange)
		return 0
	}
	return uint32(v)
}

func (d *decoder) flag(k Key) bool {
	v := d.uint(k)
	if v > 1 {
		d.fail(k, ErrOutOfRange)
		return false
	}
	return v == 1
}

func (d *decoder) int(k Key) int64 {
	b := d.fields[k].value
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.BigEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.BigEndian.Uint32(b)))
	case 8:
		return int64(binary.BigEndian.Uint64(b))
	default:
		d.fail(k, ErrBadLength)
		return 0
	}
}

func (d *decoder) float(k Key) float64 {
	b := d.fields[k].value
	switch len(b) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	default:
		d.fail(k, ErrBadLength)
		return 0
	}
}
