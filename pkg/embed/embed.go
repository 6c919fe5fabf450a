// Package embed produces the containers served for each quality: it resizes
// the source image, squeezes its dynamic range into 8 bits when required,
// compresses it and wraps the result with its metadata.
package embed

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"klvviewer/internal/models"
	"klvviewer/pkg/klv"
	"klvviewer/pkg/pixels"
)

var ErrEmptyImage = errors.New("embed: empty image")

// Policy is the processing chain applied to produce one quality
type Policy struct {
	Quality models.Quality

	// MaxSize bounds the largest side of the output; 0 keeps the source size
	MaxSize int

	// To8Bit squeezes 16-bit and signed mono data into [0, 255]
	To8Bit bool

	Compression klv.Compression
	JpegQuality int
}

var policies = map[models.Quality]Policy{
	models.Lossless:       {Quality: models.Lossless, Compression: klv.Png},
	models.DownscaledHigh: {Quality: models.DownscaledHigh, MaxSize: 1000, To8Bit: true, Compression: klv.Jpeg, JpegQuality: 100},
	models.DownscaledLow:  {Quality: models.DownscaledLow, MaxSize: 150, To8Bit: true, Compression: klv.Jpeg, JpegQuality: 100},
}

// PolicyFor returns the processing chain of q
func PolicyFor(q models.Quality) (Policy, error) {
	p, ok := policies[q]
	if !ok {
		return Policy{}, fmt.Errorf("embed: no policy for quality %s", q)
	}
	return p, nil
}

// Embed builds the container of img at quality q. signed marks mono samples
// as two's complement.
func Embed(img image.Image, signed bool, q models.Quality) ([]byte, error) {
	p, err := PolicyFor(q)
	if err != nil {
		return nil, err
	}
	return p.Apply(img, signed)
}

// Apply runs the chain on img
func (p Policy) Apply(img image.Image, signed bool) ([]byte, error) {
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	buf := bufferOf(img, signed)
	meta := Describe(buf)

	if p.MaxSize > 0 {
		buf = resize(buf, p.MaxSize)
	}
	if p.To8Bit && !buf.IsColor() && buf.Format != models.UInt8 {
		buf = to8Bit(buf, meta.MinPixelValue, meta.MaxPixelValue)
		meta.Stretched = true
	}

	var blob bytes.Buffer
	switch p.Compression {
	case klv.Png:
		if err := png.Encode(&blob, rasterOf(buf, false)); err != nil {
			return nil, fmt.Errorf("error encoding png: %w", err)
		}
	case klv.Jpeg:
		if buf.Format != models.UInt8 {
			return nil, fmt.Errorf("embed: jpeg requires 8-bit samples, got %s", buf.Format)
		}
		if err := jpeg.Encode(&blob, rasterOf(buf, false), &jpeg.Options{Quality: p.JpegQuality}); err != nil {
			return nil, fmt.Errorf("error encoding jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("embed: %w: %s", klv.ErrUnknownCompression, p.Compression)
	}

	meta.Width = uint32(buf.Width)
	meta.Height = uint32(buf.Height)
	meta.SizeInBytes = uint32(buf.Len() * buf.Format.BitsPerSample() / 8)
	return klv.Encode(meta, p.Compression, blob.Bytes()), nil
}

// Describe computes the metadata of a source buffer: sample range and default
// windowing, unit slope and spacing, and the original size.
func Describe(buf *models.PixelBuffer) models.Metadata {
	meta := models.Metadata{
		Height:             uint32(buf.Height),
		Width:              uint32(buf.Width),
		ColumnPixelSpacing: 1,
		RowPixelSpacing:    1,
		Slope:              1,
		Intercept:          0,
		IsSigned:           buf.Format.Signed(),
		OriginalHeight:     uint32(buf.Height),
		OriginalWidth:      uint32(buf.Width),
	}

	if buf.IsColor() {
		meta.Color = true
		meta.MinPixelValue = 0
		meta.MaxPixelValue = 255
		meta.WindowCenter = 127.5
		meta.WindowWidth = 256
		return meta
	}

	st := pixels.Stats(buf)
	lo, hi := int64(st.Min), int64(st.Max)
	meta.MinPixelValue = min(lo, 0)
	meta.MaxPixelValue = max(hi, 1)
	meta.WindowCenter = float64(lo+hi) / 2
	if lo == hi {
		meta.WindowWidth = 256
	} else {
		meta.WindowWidth = float64(hi-lo) / 2
	}
	return meta
}

// resize scales buf so that its largest side is at most maxSize, keeping the
// aspect ratio
func resize(buf *models.PixelBuffer, maxSize int) *models.PixelBuffer {
	largest := max(buf.Width, buf.Height)
	if largest <= maxSize {
		return buf
	}
	ratio := float64(maxSize) / float64(largest)
	w := max(1, int(math.Round(float64(buf.Width)*ratio)))
	h := max(1, int(math.Round(float64(buf.Height)*ratio)))

	src := rasterOf(buf, true)
	dst := blank(src, w, h)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return bufferFromRaster(dst, buf.Format, buf.Channels)
}

// to8Bit maps [low, high] onto [0, 255], the inverse of the stretching the
// decoder applies to lossy mono data
func to8Bit(buf *models.PixelBuffer, low, high int64) *models.PixelBuffer {
	out := models.NewPixelBuffer(buf.Width, buf.Height, buf.Channels, models.UInt8)
	if low == high {
		return out
	}
	s := pixels.NewStretching(low, high).Inverse()
	for i := range out.U8 {
		v := math.Round(s.Apply(float64(buf.Sample(i))))
		out.U8[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return out
}
