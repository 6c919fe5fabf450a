package postprocess

import (
	"fmt"
	"slices"

	"klvviewer/internal/models"
	"klvviewer/pkg/pixels"
)

// invert mirrors mono samples inside their actual range and color samples
// inside [0, 255]. Alpha is kept.
type invert struct{}

func newInvert(args ...string) (Processor, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("%w: invert takes none, got %v", ErrInvalidArgs, args)
	}
	return invert{}, nil
}

func (invert) Process(buf *models.PixelBuffer, meta models.Metadata) (*models.PixelBuffer, models.Metadata, error) {
	out := clone(buf)
	if buf.IsColor() {
		for i := range out.U8 {
			if i%4 != 3 {
				out.U8[i] = 255 - out.U8[i]
			}
		}
		return out, meta, nil
	}

	st := pixels.Stats(buf)
	sum := int(st.Min + st.Max)
	for i := 0; i < out.Len(); i++ {
		v := sum - buf.Sample(i)
		switch out.Format {
		case models.UInt8:
			out.U8[i] = uint8(v)
		case models.Int8:
			out.I8[i] = int8(v)
		case models.UInt16:
			out.U16[i] = uint16(v)
		case models.Int16:
			out.I16[i] = int16(v)
		}
	}

	// the default window follows the mirrored values
	slope := meta.Slope
	if slope == 0 {
		slope = 1
	}
	meta.WindowCenter = float64(sum)*slope + 2*meta.Intercept - meta.WindowCenter
	return out, meta, nil
}

// flip mirrors the raster along one axis
type flip struct {
	horizontal bool
}

func newFlip(args ...string) (Processor, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: flip takes one axis, got %v", ErrInvalidArgs, args)
	}
	switch args[0] {
	case "horizontal":
		return flip{horizontal: true}, nil
	case "vertical":
		return flip{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown axis %q", ErrInvalidArgs, args[0])
	}
}

func (f flip) Process(buf *models.PixelBuffer, meta models.Metadata) (*models.PixelBuffer, models.Metadata, error) {
	out := clone(buf)
	switch out.Format {
	case models.UInt8:
		flipSamples(out.U8, buf.Width, buf.Height, buf.Channels, f.horizontal)
	case models.Int8:
		flipSamples(out.I8, buf.Width, buf.Height, buf.Channels, f.horizontal)
	case models.UInt16:
		flipSamples(out.U16, buf.Width, buf.Height, buf.Channels, f.horizontal)
	case models.Int16:
		flipSamples(out.I16, buf.Width, buf.Height, buf.Channels, f.horizontal)
	}
	return out, meta, nil
}

// flipSamples mirrors s in place. Pixels of ch samples are moved as a whole.
func flipSamples[T any](s []T, width, height, ch int, horizontal bool) {
	stride := width * ch
	if !horizontal {
		for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
			a := s[top*stride : (top+1)*stride]
			b := s[bottom*stride : (bottom+1)*stride]
			for i := range a {
				a[i], b[i] = b[i], a[i]
			}
		}
		return
	}
	for y := 0; y < height; y++ {
		row := s[y*stride : (y+1)*stride]
		for l, r := 0, width-1; l < r; l, r = l+1, r-1 {
			for c := 0; c < ch; c++ {
				row[l*ch+c], row[r*ch+c] = row[r*ch+c], row[l*ch+c]
			}
		}
	}
}

func clone(buf *models.PixelBuffer) *models.PixelBuffer {
	out := *buf
	out.U8 = slices.Clone(buf.U8)
	out.I8 = slices.Clone(buf.I8)
	out.U16 = slices.Clone(buf.U16)
	out.I16 = slices.Clone(buf.I16)
	return &out
}
