// Package visualization renders decoded pixel buffers: windowing turns
// samples into displayable gray levels and the Viewer writes what a viewport
// shows into image files.
package visualization

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"klvviewer/internal/models"
	"klvviewer/pkg/pixels"
)

// ToImage converts buf into a displayable image. Mono samples are rescaled
// with the slope and intercept of meta, then mapped through the window of t;
// a window width of zero falls back to the sample range. Invert flips the
// output levels of both mono and color data.
func ToImage(buf *models.PixelBuffer, meta models.Metadata, t models.ViewportTransform) image.Image {
	r := image.Rect(0, 0, buf.Width, buf.Height)

	if buf.IsColor() {
		img := image.NewRGBA(r)
		copy(img.Pix, buf.U8)
		if t.Invert {
			for i := range img.Pix {
				if i%4 != 3 {
					img.Pix[i] = 255 - img.Pix[i]
				}
			}
		}
		return img
	}

	slope := meta.Slope
	if slope == 0 {
		slope = 1
	}
	low, width := t.WindowCenter-t.WindowWidth/2, t.WindowWidth
	if width <= 0 {
		st := pixels.Stats(buf)
		low = st.Min*slope + meta.Intercept
		width = (st.Max - st.Min) * slope
	}

	img := image.NewGray(r)
	for i := range img.Pix {
		v := float64(buf.Sample(i))*slope + meta.Intercept
		level := 0.0
		if width > 0 {
			level = math.Round((v - low) / width * 255)
		}
		level = math.Max(0, math.Min(255, level))
		if t.Invert {
			level = 255 - level
		}
		img.Pix[i] = uint8(level)
	}
	return img
}

// Viewer is a file-backed display surface. Each Draw renders the image as it
// would appear on a canvas of the configured size and writes it to
// <dir>/<instance>_<frame>_<quality>.png.
type Viewer struct {
	dir    string
	canvas models.Resolution

	mu      sync.Mutex
	written []string
	current string
}

// NewViewer creates a viewer writing into dir
func NewViewer(dir string, canvas models.Resolution) *Viewer {
	return &Viewer{dir: dir, canvas: canvas}
}

// Render draws img on a canvas-sized image: the image center is moved to the
// canvas center, shifted by the pan and scaled around it.
func Render(img image.Image, canvas models.Resolution, t models.ViewportTransform) draw.Image {
	b := img.Bounds()
	var dst draw.Image
	if _, ok := img.(*image.RGBA); ok {
		dst = image.NewRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	} else {
		dst = image.NewGray(image.Rect(0, 0, canvas.Width, canvas.Height))
	}

	s := t.Scale
	if s <= 0 {
		s = 1
	}
	cx, cy := float64(canvas.Width)/2, float64(canvas.Height)/2
	ix, iy := float64(b.Min.X)+float64(b.Dx())/2, float64(b.Min.Y)+float64(b.Dy())/2
	m := f64.Aff3{
		s, 0, cx + s*(t.Pan[0]-ix),
		0, s, cy + s*(t.Pan[1]-iy),
	}
	draw.ApproxBiLinear.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}

// Draw renders buf with t and saves the result
func (v *Viewer) Draw(id models.ImageID, q models.Quality, buf *models.PixelBuffer, meta models.Metadata, t models.ViewportTransform) error {
	if err := os.MkdirAll(v.dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	out := Render(ToImage(buf, meta, t), v.canvas, t)
	filename := filepath.Join(v.dir, fmt.Sprintf("%s_%d_%s.png", id.InstanceID, id.Frame, q))
	if err := SaveImage(out, filename); err != nil {
		return err
	}

	v.mu.Lock()
	v.written = append(v.written, filename)
	v.current = filename
	v.mu.Unlock()
	return nil
}

// Clear marks the surface as empty. Files already written are kept.
func (v *Viewer) Clear() {
	v.mu.Lock()
	v.current = ""
	v.mu.Unlock()
}

// Current returns the file of the image on display, empty after Clear
func (v *Viewer) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Written returns the files saved so far in drawing order
func (v *Viewer) Written() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.written...)
}

// SaveImage saves img as a PNG file
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
