package embed

import (
	"image"
	"image/color"
	"image/draw"

	"klvviewer/internal/models"
)

// bufferOf converts a source image into a pixel buffer. Gray and Gray16
// sources stay mono; everything else is flattened to opaque RGBA.
func bufferOf(img image.Image, signed bool) *models.PixelBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		format := models.UInt8
		if signed {
			format = models.Int8
		}
		buf := models.NewPixelBuffer(w, h, models.MonoChannels, format)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := src.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				if signed {
					buf.I8[y*w+x] = int8(v)
				} else {
					buf.U8[y*w+x] = v
				}
			}
		}
		return buf

	case *image.Gray16:
		format := models.UInt16
		if signed {
			format = models.Int16
		}
		buf := models.NewPixelBuffer(w, h, models.MonoChannels, format)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				if signed {
					buf.I16[y*w+x] = int16(v)
				} else {
					buf.U16[y*w+x] = v
				}
			}
		}
		return buf

	default:
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Opaque), image.Point{}, draw.Src)
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Over)
		buf := models.NewPixelBuffer(w, h, models.ColorChannels, models.UInt8)
		copy(buf.U8, rgba.Pix)
		return buf
	}
}

// rasterOf renders buf as an image anchored at the origin. With offset set,
// signed samples are shifted to offset binary so that interpolation sees a
// monotonic range; otherwise their two's complement bits are kept as is.
func rasterOf(buf *models.PixelBuffer, offset bool) image.Image {
	r := image.Rect(0, 0, buf.Width, buf.Height)
	switch buf.Format {
	case models.UInt8:
		if buf.IsColor() {
			img := image.NewRGBA(r)
			copy(img.Pix, buf.U8)
			return img
		}
		img := image.NewGray(r)
		copy(img.Pix, buf.U8)
		return img
	case models.Int8:
		img := image.NewGray(r)
		for i, v := range buf.I8 {
			if offset {
				img.Pix[i] = uint8(int(v) + 128)
			} else {
				img.Pix[i] = uint8(v)
			}
		}
		return img
	case models.UInt16:
		img := image.NewGray16(r)
		for i, v := range buf.U16 {
			img.Pix[2*i] = uint8(v >> 8)
			img.Pix[2*i+1] = uint8(v)
		}
		return img
	default:
		img := image.NewGray16(r)
		for i, v := range buf.I16 {
			u := uint16(v)
			if offset {
				u = uint16(int(v) + 32768)
			}
			img.Pix[2*i] = uint8(u >> 8)
			img.Pix[2*i+1] = uint8(u)
		}
		return img
	}
}

// bufferFromRaster is the inverse of rasterOf with offset set
func bufferFromRaster(img image.Image, format models.ElementFormat, channels int) *models.PixelBuffer {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	buf := models.NewPixelBuffer(w, h, channels, format)
	switch src := img.(type) {
	case *image.RGBA:
		copy(buf.U8, src.Pix)
	case *image.Gray:
		for i, v := range src.Pix {
			if format == models.Int8 {
				buf.I8[i] = int8(int(v) - 128)
			} else {
				buf.U8[i] = v
			}
		}
	case *image.Gray16:
		for i := 0; i < w*h; i++ {
			u := uint16(src.Pix[2*i])<<8 | uint16(src.Pix[2*i+1])
			if format == models.Int16 {
				buf.I16[i] = int16(int(u) - 32768)
			} else {
				buf.U16[i] = u
			}
		}
	}
	return buf
}

// blank returns an empty raster of the same kind as img
func blank(img image.Image, w, h int) draw.Image {
	r := image.Rect(0, 0, w, h)
	switch img.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	default:
		return image.NewRGBA(r)
	}
}
