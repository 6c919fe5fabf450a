// Package klv reads and writes the key/length/value container that carries a
// compressed image together with its acquisition metadata.
//
// On the wire a container is a sequence of triples:
//
//	key    uint32 big-endian
//	length uint32 big-endian
//	value  [length]byte
//
// The key table is fixed. Every key is required exactly once and keys outside
// the table are rejected; a schema change needs a new reader.
package klv

import "fmt"

// Key identifies a container field
type Key uint32

const (
	KeyColor Key = iota
	KeyHeight
	KeyWidth
	KeySizeInBytes
	KeyColumnPixelSpacing
	KeyRowPixelSpacing
	KeyMinPixelValue
	KeyMaxPixelValue
	KeySlope
	KeyIntercept
	KeyWindowCenter
	KeyWindowWidth
	KeyIsSigned
	KeyStretched
	KeyCompression
	KeyOriginalHeight
	KeyOriginalWidth
	KeyImageBinary

	numKeys = int(KeyImageBinary) + 1
)

// kind is the semantic type of a field value
type kind int

const (
	kindUint kind = iota
	kindInt
	kindFloat
	kindString
	kindBinary
)

var keyNames = [numKeys]string{
	"Color", "Height", "Width", "SizeInBytes",
	"ColumnPixelSpacing", "RowPixelSpacing",
	"MinPixelValue", "MaxPixelValue", "Slope", "Intercept",
	"WindowCenter", "WindowWidth",
	"IsSigned", "Stretched", "Compression",
	"OriginalHeight", "OriginalWidth",
	"ImageBinary",
}

var keyKinds = [numKeys]kind{
	kindUint, kindUint, kindUint, kindUint,
	kindFloat, kindFloat,
	kindInt, kindInt, kindFloat, kindFloat,
	kindFloat, kindFloat,
	kindUint, kindUint, kindString,
	kindUint, kindUint,
	kindBinary,
}

func (k Key) String() string {
	if k.known() {
		return keyNames[k]
	}
	return fmt.Sprintf("Key(%d)", uint32(k))
}

func (k Key) known() bool {
	return int(k) < numKeys
}

func (k Key) kind() kind {
	return keyKinds[k]
}

// Compression is the codec of the pixel blob. It is a closed set: anything
// else on the wire fails the parse.
type Compression int

const (
	Jpeg Compression = iota + 1
	Png
)

func (c Compression) String() string {
	switch c {
	case Jpeg:
		return "Jpeg"
	case Png:
		return "Png"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ParseCompression maps the wire tag to a Compression
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "Jpeg":
		return Jpeg, nil
	case "Png":
		return Png, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}
