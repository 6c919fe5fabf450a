// Package pixels turns the compressed blob of a container into a PixelBuffer.
//
// The output element format and channel count are fully determined by the
// container fields (Color, IsSigned) and by the bit depth of the decompressed
// raster:
//
//	color                -> UInt8  x 4 (RGBA, alpha 255)
//	mono, 16-bit         -> UInt16 | Int16 x 1
//	mono, 8-bit (Png)    -> UInt8  | Int8  x 1
//	mono, Jpeg           -> UInt16 | Int16 x 1 (stretched back when flagged)
//
// Any other combination is rejected with ErrUnexpectedFormat.
package pixels

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"klvviewer/internal/models"
	"klvviewer/pkg/klv"
)

// Decode decompresses and normalizes the pixel blob of c
func Decode(c *klv.Container) (*models.PixelBuffer, error) {
	switch c.Compression {
	case klv.Jpeg:
		img, err := jpeg.Decode(bytes.NewReader(c.Binary))
		if err != nil {
			return nil, &FormatError{Compression: klv.Jpeg, Detail: err.Error(), Err: ErrCorruptBinary}
		}
		if err := checkSize(klv.Jpeg, img, c.Metadata); err != nil {
			return nil, err
		}
		return decodeJpeg(img, c.Metadata)

	case klv.Png:
		img, err := png.Decode(bytes.NewReader(c.Binary))
		if err != nil {
			return nil, &FormatError{Compression: klv.Png, Detail: err.Error(), Err: ErrCorruptBinary}
		}
		if err := checkSize(klv.Png, img, c.Metadata); err != nil {
			return nil, err
		}
		return decodePng(img, c.Metadata)

	default:
		return nil, unexpected(c.Compression, "no decoder for compression")
	}
}

func checkSize(c klv.Compression, img image.Image, m models.Metadata) error {
	b := img.Bounds()
	if b.Dx() != int(m.Width) || b.Dy() != int(m.Height) {
		return &FormatError{
			Compression: c,
			Detail:      "raster " + models.Resolution{Width: b.Dx(), Height: b.Dy()}.String() + ", metadata " + m.Resolution().String(),
			Err:         ErrDimensionMismatch,
		}
	}
	return nil
}

// decodeJpeg handles lossy containers. Mono data is always widened to 16 bits
// so stretched and non-stretched images share a format.
func decodeJpeg(img image.Image, m models.Metadata) (*models.PixelBuffer, error) {
	switch src := img.(type) {
	case *image.YCbCr:
		if !m.Color {
			return nil, unexpected(klv.Jpeg, "color raster in a mono container")
		}
		return ycbcrToRGBA(src), nil

	case *image.Gray:
		if m.Color {
			return nil, unexpected(klv.Jpeg, "mono raster in a color container")
		}
		samples := packGray(src)
		w, h := src.Rect.Dx(), src.Rect.Dy()

		format := models.UInt16
		if m.IsSigned {
			format = models.Int16
		}
		buf := &models.PixelBuffer{Width: w, Height: h, Channels: models.MonoChannels, Format: format}

		if m.Stretched {
			buf.U16, buf.I16 = StretchTo16(samples, NewStretching(m.MinPixelValue, m.MaxPixelValue), m.IsSigned)
			return buf, nil
		}
		if m.IsSigned {
			buf.I16 = make([]int16, len(samples))
			for i, v := range samples {
				buf.I16[i] = int16(v)
			}
		} else {
			buf.U16 = make([]uint16, len(samples))
			for i, v := range samples {
				buf.U16[i] = uint16(v)
			}
		}
		return buf, nil

	default:
		return nil, unexpected(klv.Jpeg, "unsupported raster %T", img)
	}
}

// decodePng handles lossless containers
func decodePng(img image.Image, m models.Metadata) (*models.PixelBuffer, error) {
	switch src := img.(type) {
	case *image.RGBA:
		if !m.Color {
			return nil, unexpected(klv.Png, "color raster in a mono container")
		}
		return rgbToRGBA(src), nil

	case *image.Gray16:
		if m.Color {
			return nil, unexpected(klv.Png, "mono raster in a color container")
		}
		return gray16Samples(src, m.IsSigned), nil

	case *image.Gray:
		if m.Color {
			return nil, unexpected(klv.Png, "mono raster in a color container")
		}
		samples := packGray(src)
		w, h := src.Rect.Dx(), src.Rect.Dy()
		if m.IsSigned {
			buf := &models.PixelBuffer{Width: w, Height: h, Channels: models.MonoChannels, Format: models.Int8}
			buf.I8 = make([]int8, len(samples))
			for i, v := range samples {
				buf.I8[i] = int8(v)
			}
			return buf, nil
		}
		return &models.PixelBuffer{Width: w, Height: h, Channels: models.MonoChannels, Format: models.UInt8, U8: samples}, nil

	default:
		// 16-bit color, palette and alpha rasters are not produced by the server
		return nil, unexpected(klv.Png, "unsupported raster %T", img)
	}
}

// packGray copies the raster rows into a contiguous slice
func packGray(src *image.Gray) []uint8 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		out = append(out, row...)
	}
	return out
}

// gray16Samples rebuilds 16-bit samples from the big-endian byte pairs of the
// decompressed raster: value = byte[2i+1] + byte[2i]*256.
func gray16Samples(src *image.Gray16, signed bool) *models.PixelBuffer {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	format := models.UInt16
	if signed {
		format = models.Int16
	}
	buf := models.NewPixelBuffer(w, h, models.MonoChannels, format)

	i := 0
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+2*w]
		for x := 0; x < w; x++ {
			upper, lower := row[2*x], row[2*x+1]
			v := uint16(lower) + uint16(upper)*256
			if signed {
				buf.I16[i] = int16(v)
			} else {
				buf.U16[i] = v
			}
			i++
		}
	}
	return buf
}

// rgbToRGBA reinterleaves the color channels with an opaque alpha
func rgbToRGBA(src *image.RGBA) *models.PixelBuffer {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	buf := models.NewPixelBuffer(w, h, models.ColorChannels, models.UInt8)

	i := 0
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+4*w]
		for x := 0; x < w; x++ {
			buf.U8[i] = row[4*x]
			buf.U8[i+1] = row[4*x+1]
			buf.U8[i+2] = row[4*x+2]
			buf.U8[i+3] = 255
			i += 4
		}
	}
	return buf
}

func ycbcrToRGBA(src *image.YCbCr) *models.PixelBuffer {
	b := src.Rect
	buf := models.NewPixelBuffer(b.Dx(), b.Dy(), models.ColorChannels, models.UInt8)

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.YCbCrAt(x, y)
			r, g, bl := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
			buf.U8[i] = r
			buf.U8[i+1] = g
			buf.U8[i+2] = bl
			buf.U8[i+3] = 255
			i += 4
		}
	}
	return buf
}
