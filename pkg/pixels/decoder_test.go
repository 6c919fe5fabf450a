package pixels

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"klvviewer/internal/models"
	"klvviewer/pkg/klv"
)

// encodePng encodes img as PNG, failing the test on error
func encodePng(t *testing.T, img image.Image) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := png.Encode(&b, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return b.Bytes()
}

// encodeJpeg encodes img as JPEG at quality 100
func encodeJpeg(t *testing.T, img image.Image) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := jpeg.Encode(&b, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return b.Bytes()
}

// container wraps a blob with the metadata fields the decoder reads
func container(c klv.Compression, blob []byte, w, h int, isColor, signed, stretched bool) *klv.Container {
	return &klv.Container{
		Compression: c,
		Binary:      blob,
		Metadata: models.Metadata{
			Width:     uint32(w),
			Height:    uint32(h),
			Color:     isColor,
			IsSigned:  signed,
			Stretched: stretched,
		},
	}
}

// TestDecodePngRoundTrip checks the 3x2 mono raster for both bit depths
func TestDecodePngRoundTrip(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray16 := image.NewGray16(image.Rect(0, 0, 3, 2))
	for i := 0; i < 6; i++ {
		gray.Pix[i] = uint8(i * 40)
		gray16.SetGray16(i%3, i/3, color.Gray16{Y: uint16(i * 1000)})
	}

	tests := []struct {
		name   string
		img    image.Image
		format models.ElementFormat
	}{
		{"8-bit", gray, models.UInt8},
		{"16-bit", gray16, models.UInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Decode(container(klv.Png, encodePng(t, tt.img), 3, 2, false, false, false))
			if err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if buf.Format != tt.format {
				t.Errorf("Expected format %s, got %s", tt.format, buf.Format)
			}
			if buf.Width != 3 || buf.Height != 2 {
				t.Errorf("Expected 3x2, got %dx%d", buf.Width, buf.Height)
			}
			if buf.Len() != buf.Width*buf.Height {
				t.Errorf("Expected %d samples, got %d", buf.Width*buf.Height, buf.Len())
			}
			if err := buf.Validate(); err != nil {
				t.Errorf("Expected a valid buffer, got %v", err)
			}
			for i := 0; i < 6; i++ {
				want := i * 40
				if tt.format == models.UInt16 {
					want = i * 1000
				}
				if got := buf.Sample(i); got != want {
					t.Errorf("Sample %d: expected %d, got %d", i, want, got)
				}
			}
		})
	}
}

// TestGray16Endianness checks the byte-pair reconstitution of 16-bit samples
func TestGray16Endianness(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 1, 1))
	src.Pix[0], src.Pix[1] = 0x01, 0x02 // upper, lower

	buf := gray16Samples(src, false)
	if buf.U16[0] != 258 {
		t.Errorf("Expected 1*256+2 = 258, got %d", buf.U16[0])
	}

	src.Pix[0], src.Pix[1] = 0xFF, 0xFE
	buf = gray16Samples(src, true)
	if buf.Format != models.Int16 || buf.I16[0] != -2 {
		t.Errorf("Expected Int16 -2, got %s %d", buf.Format, buf.I16[0])
	}
}

// TestDecodePngSigned8 checks that 8-bit signed data is reinterpreted, not converted
func TestDecodePngSigned8(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.Pix[0], gray.Pix[1] = 0xFF, 0x7F

	buf, err := Decode(container(klv.Png, encodePng(t, gray), 2, 1, false, true, false))
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if buf.Format != models.Int8 {
		t.Fatalf("Expected Int8, got %s", buf.Format)
	}
	if buf.I8[0] != -1 || buf.I8[1] != 127 {
		t.Errorf("Expected [-1 127], got %v", buf.I8)
	}
}

// TestDecodeColor checks RGB to RGBA reinterleaving for both codecs
func TestDecodeColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 100, 50, 255
	}

	for _, tc := range []struct {
		c    klv.Compression
		blob []byte
		tol  int
	}{
		{klv.Png, encodePng(t, img), 0},
		{klv.Jpeg, encodeJpeg(t, img), 4},
	} {
		buf, err := Decode(container(tc.c, tc.blob, 8, 8, true, false, false))
		if err != nil {
			t.Fatalf("%s: failed to decode: %v", tc.c, err)
		}
		if buf.Format != models.UInt8 || buf.Channels != models.ColorChannels {
			t.Fatalf("%s: expected Uint8 x4, got %s x%d", tc.c, buf.Format, buf.Channels)
		}
		if buf.Len() != 8*8*4 {
			t.Fatalf("%s: expected %d samples, got %d", tc.c, 8*8*4, buf.Len())
		}
		want := [4]int{200, 100, 50, 255}
		for ch := 0; ch < 4; ch++ {
			if d := buf.Sample(ch) - want[ch]; d > tc.tol || d < -tc.tol {
				t.Errorf("%s: channel %d expected %d, got %d", tc.c, ch, want[ch], buf.Sample(ch))
			}
		}
	}
}

// TestStretchingFormula checks the linear remap of the lossy path
func TestStretchingFormula(t *testing.T) {
	s := NewStretching(0, 1023)
	if got := math.Round(s.Apply(128)); math.Abs(got-514) > 1 {
		t.Errorf("Expected 514 (+-1), got %v", got)
	}

	u16, i16 := StretchTo16([]uint8{0, 128, 255}, s, false)
	if i16 != nil {
		t.Error("Expected no signed output for unsigned stretching")
	}
	if u16[0] != 0 || u16[1] != 514 || u16[2] != 1023 {
		t.Errorf("Expected [0 514 1023], got %v", u16)
	}

	_, i16 = StretchTo16([]uint8{0, 255}, NewStretching(-1024, 3071), true)
	if i16[0] != -1024 || i16[1] != 3071 {
		t.Errorf("Expected [-1024 3071], got %v", i16)
	}

	inv := s.Inverse()
	if got := inv.Apply(1023); math.Abs(got-255) > 1e-9 {
		t.Errorf("Expected inverse of 1023 to be 255, got %v", got)
	}
}

// TestDecodeJpegStretched checks that lossy mono data is widened and stretched
func TestDecodeJpegStretched(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	c := container(klv.Jpeg, encodeJpeg(t, gray), 8, 8, false, false, true)
	c.Metadata.MinPixelValue = 0
	c.Metadata.MaxPixelValue = 1023

	buf, err := Decode(c)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if buf.Format != models.UInt16 {
		t.Fatalf("Expected Uint16, got %s", buf.Format)
	}
	// One lossy step on the 8-bit sample moves the result by ~4
	if got := buf.Sample(0); got < 509 || got > 519 {
		t.Errorf("Expected ~514, got %d", got)
	}

	c.Metadata.Stretched = false
	c.Metadata.IsSigned = true
	buf, err = Decode(c)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if buf.Format != models.Int16 {
		t.Fatalf("Expected Int16 for signed mono jpeg, got %s", buf.Format)
	}
	if got := buf.Sample(0); got < 127 || got > 129 {
		t.Errorf("Expected ~128 without stretching, got %d", got)
	}
}

// TestDecodeErrors checks the fatal format combinations
func TestDecodeErrors(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	rgb16 := image.NewRGBA64(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(rgb16.Pix); i += 8 {
		rgb16.Pix[i+6], rgb16.Pix[i+7] = 0xFF, 0xFF
	}

	tests := []struct {
		name string
		c    *klv.Container
		want error
	}{
		{"color flag on mono png", container(klv.Png, encodePng(t, gray), 4, 4, true, false, false), ErrUnexpectedFormat},
		{"16-bit color png", container(klv.Png, encodePng(t, rgb16), 4, 4, true, false, false), ErrUnexpectedFormat},
		{"color flag on mono jpeg", container(klv.Jpeg, encodeJpeg(t, gray), 4, 4, true, false, false), ErrUnexpectedFormat},
		{"size mismatch", container(klv.Png, encodePng(t, gray), 5, 4, false, false, false), ErrDimensionMismatch},
		{"corrupt png", container(klv.Png, []byte("not a png"), 4, 4, false, false, false), ErrCorruptBinary},
		{"corrupt jpeg", container(klv.Jpeg, []byte{0xFF, 0xD8, 0x00}, 4, 4, false, false, false), ErrCorruptBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.c)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Errorf("Expected *FormatError, got %T", err)
			}
		})
	}
}

// TestStats checks the gonum backed summary
func TestStats(t *testing.T) {
	buf := models.NewPixelBuffer(2, 2, models.MonoChannels, models.Int16)
	copy(buf.I16, []int16{-10, 0, 10, 20})

	s := Stats(buf)
	if s.Min != -10 || s.Max != 20 {
		t.Errorf("Expected range [-10, 20], got [%v, %v]", s.Min, s.Max)
	}
	if s.Mean != 5 {
		t.Errorf("Expected mean 5, got %v", s.Mean)
	}

	rgba := models.NewPixelBuffer(1, 1, models.ColorChannels, models.UInt8)
	copy(rgba.U8, []uint8{10, 20, 30, 255})
	if s := Stats(rgba); s.Max != 30 {
		t.Errorf("Expected alpha to be ignored, got max %v", s.Max)
	}

	if s := Stats(models.NewPixelBuffer(0, 0, models.MonoChannels, models.UInt8)); s != (Statistics{}) {
		t.Errorf("Expected zero statistics for an empty buffer, got %+v", s)
	}
}
