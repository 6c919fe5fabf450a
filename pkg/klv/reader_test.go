package klv

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"klvviewer/internal/models"
)

// testMetadata returns metadata with every field set to a distinct value
func testMetadata() models.Metadata {
	return models.Metadata{
		Color:              false,
		Height:             2,
		Width:              3,
		SizeInBytes:        6,
		ColumnPixelSpacing: 0.7,
		RowPixelSpacing:    0.35,
		MinPixelValue:      -1024,
		MaxPixelValue:      3071,
		Slope:              1.5,
		Intercept:          -1024,
		WindowCenter:       40,
		WindowWidth:        400,
		IsSigned:           true,
		Stretched:          true,
		OriginalHeight:     512,
		OriginalWidth:      768,
	}
}

// TestEncodeParse verifies that every field survives a write/read cycle exactly
func TestEncodeParse(t *testing.T) {
	meta := testMetadata()
	blob := []byte{1, 2, 3, 4, 5}

	data := Encode(meta, Png, blob)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse container: %v", err)
	}

	meta.Compression = "Png"
	if c.Metadata != meta {
		t.Errorf("Expected metadata %+v, got %+v", meta, c.Metadata)
	}
	if c.Compression != Png {
		t.Errorf("Expected compression %s, got %s", Png, c.Compression)
	}
	if string(c.Binary) != string(blob) {
		t.Errorf("Expected binary %v, got %v", blob, c.Binary)
	}

	// The blob must not alias the input
	data[len(data)-1] = 0xFF
	if c.Binary[len(c.Binary)-1] != 5 {
		t.Error("Expected binary to be copied out of the input")
	}
}

// TestParseNarrowEncodings checks the accepted value widths for each kind
func TestParseNarrowEncodings(t *testing.T) {
	var w Writer
	w.Raw(KeyColor, []byte{1})
	w.Raw(KeyHeight, []byte{0x01, 0x00})
	w.Raw(KeyWidth, []byte{0, 0, 0, 0, 0, 0, 0x02, 0x00})
	w.Uint(KeySizeInBytes, 1)
	w.Raw(KeyColumnPixelSpacing, float32Bytes(0.5))
	w.Raw(KeyRowPixelSpacing, float32Bytes(0.25))
	w.Raw(KeyMinPixelValue, []byte{0xFF})
	w.Raw(KeyMaxPixelValue, []byte{0x7F, 0xFF})
	w.Float(KeySlope, 1)
	w.Float(KeyIntercept, 0)
	w.Raw(KeyWindowCenter, float32Bytes(127.5))
	w.Float(KeyWindowWidth, 256)
	w.Raw(KeyIsSigned, []byte{0})
	w.Raw(KeyStretched, []byte{0, 0})
	w.Text(KeyCompression, "Jpeg")
	w.Uint(KeyOriginalHeight, 256)
	w.Uint(KeyOriginalWidth, 512)
	w.Raw(KeyImageBinary, nil)

	c, err := Parse(w.Bytes())
	if err != nil {
		t.Fatalf("Failed to parse container: %v", err)
	}

	m := c.Metadata
	if !m.Color {
		t.Error("Expected color flag to be set")
	}
	if m.Height != 256 || m.Width != 512 {
		t.Errorf("Expected 512x256, got %dx%d", m.Width, m.Height)
	}
	if m.MinPixelValue != -1 {
		t.Errorf("Expected MinPixelValue -1, got %d", m.MinPixelValue)
	}
	if m.MaxPixelValue != math.MaxInt16 {
		t.Errorf("Expected MaxPixelValue %d, got %d", math.MaxInt16, m.MaxPixelValue)
	}
	if m.ColumnPixelSpacing != 0.5 || m.WindowCenter != 127.5 {
		t.Errorf("Expected float32 values to be exact, got %v and %v", m.ColumnPixelSpacing, m.WindowCenter)
	}
	if c.Compression != Jpeg {
		t.Errorf("Expected compression %s, got %s", Jpeg, c.Compression)
	}
}

func float32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

// TestParseErrors checks every fatal condition of the reader
func TestParseErrors(t *testing.T) {
	valid := Encode(testMetadata(), Jpeg, []byte{9})

	withoutKey := func(skip Key) []byte {
		var w Writer
		for off := 0; off < len(valid); {
			k := Key(binary.BigEndian.Uint32(valid[off:]))
			n := int(binary.BigEndian.Uint32(valid[off+4:]))
			if k != skip {
				w.Raw(k, valid[off+8:off+8+n])
			}
			off += 8 + n
		}
		return w.Bytes()
	}

	appendTriple := func(base []byte, k Key, v []byte) []byte {
		var w Writer
		w.Raw(k, v)
		return append(append([]byte(nil), base...), w.Bytes()...)
	}

	tests := []struct {
		name string
		data []byte
		key  Key
		want error
	}{
		{"missing width", withoutKey(KeyWidth), KeyWidth, ErrMissingKey},
		{"missing binary", withoutKey(KeyImageBinary), KeyImageBinary, ErrMissingKey},
		{"unknown key", appendTriple(valid, Key(42), []byte{0}), Key(42), ErrUnknownKey},
		{"duplicate key", appendTriple(valid, KeyColor, []byte{0}), KeyColor, ErrDuplicateKey},
		{"truncated value", valid[:len(valid)-1], KeyImageBinary, ErrTruncated},
		{"bad uint width", appendTriple(withoutKey(KeyHeight), KeyHeight, []byte{0, 0, 1}), KeyHeight, ErrBadLength},
		{"bad float width", appendTriple(withoutKey(KeySlope), KeySlope, []byte{0, 0}), KeySlope, ErrBadLength},
		{"flag out of range", appendTriple(withoutKey(KeyStretched), KeyStretched, []byte{2}), KeyStretched, ErrOutOfRange},
		{"unknown compression", appendTriple(withoutKey(KeyCompression), KeyCompression, []byte("Jpeg2000")), KeyCompression, ErrUnknownCompression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *ParseError, got %T", err)
			}
			if perr.Key != tt.key {
				t.Errorf("Expected error on key %s, got %s", tt.key, perr.Key)
			}
		})
	}
}

// TestParseTruncatedHeader checks a container cut inside a triple header
func TestParseTruncatedHeader(t *testing.T) {
	_, err := Parse([]byte{0, 0, 0, 1, 0})
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}
}

// TestParseCompression checks the closed codec set
func TestParseCompression(t *testing.T) {
	for _, tag := range []string{"jpeg", "PNG", "", "Raw"} {
		if _, err := ParseCompression(tag); !errors.Is(err, ErrUnknownCompression) {
			t.Errorf("Expected %q to be rejected, got %v", tag, err)
		}
	}
	if c, err := ParseCompression("Png"); err != nil || c != Png {
		t.Errorf("Expected Png, got %v (%v)", c, err)
	}
}
