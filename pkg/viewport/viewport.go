// Package viewport displays one image at a time on a surface, swapping in
// better qualities as they arrive while keeping the framing and the
// annotations aligned with the raster on display.
package viewport

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"klvviewer/internal/listener"
	"klvviewer/internal/models"
	"klvviewer/pkg/annotation"
	"klvviewer/pkg/loader"
	"klvviewer/pkg/postprocess"
	"klvviewer/pkg/quality"
	"klvviewer/pkg/resolution"
)

// Surface is where the viewport draws
type Surface interface {
	Draw(id models.ImageID, q models.Quality, buf *models.PixelBuffer, meta models.Metadata, t models.ViewportTransform) error
	Clear()
}

// Options configures a Viewport
type Options struct {
	Purpose quality.Purpose

	// Available restricts the requested qualities when set
	Available []models.Quality

	// Canvas is the size of the drawing area in screen pixels
	Canvas models.Resolution

	Surface     Surface
	Annotations *annotation.Store
	Logger      *log.Logger

	// PostProcess is applied to every quality of every image shown
	PostProcess postprocess.Chain
}

// ImageChange describes the replacement of the displayed image
type ImageChange struct {
	Previous    models.ImageID
	HadPrevious bool
	Current     models.ImageID
}

// Viewport is a display session over a shared cache
type Viewport struct {
	source loader.Source
	opts   Options
	logger *log.Logger

	changed listener.Listener[ImageChange]
	failed  listener.Listener[loader.Failure]

	mu         sync.Mutex
	session    int
	loader     *loader.Loader
	image      models.ImageID
	hasImage   bool
	quality    models.Quality
	resolution models.Resolution
	transform  models.ViewportTransform
	hasView    bool

	// resolution each image's annotations are currently expressed in
	annotationRes map[models.ImageID]models.Resolution

	// number of loader callbacks running; a loader cannot be destroyed
	// synchronously from inside its own callback
	dispatching atomic.Int32

	destroyOnce sync.Once
}

// New creates an empty viewport
func New(source loader.Source, opts Options) *Viewport {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Annotations == nil {
		opts.Annotations = annotation.NewStore()
	}
	return &Viewport{
		source:        source,
		opts:          opts,
		logger:        logger,
		annotationRes: make(map[models.ImageID]models.Resolution),
	}
}

// OnImageChanged fires once per SetImage, after the first quality is drawn
func (v *Viewport) OnImageChanged(fn func(ImageChange)) *listener.Subscription {
	return v.changed.Listen(fn)
}

// OnLoadingFailed forwards the failures of the current image
func (v *Viewport) OnLoadingFailed(fn func(q models.Quality, err error)) *listener.Subscription {
	return v.failed.Listen(func(f loader.Failure) {
		fn(f.Quality, f.Err)
	})
}

// SetImage replaces the displayed image. Downloads of the previous image are
// aborted. With reset the first arriving quality is fitted into the canvas;
// otherwise the current framing is carried over.
func (v *Viewport) SetImage(id models.ImageID, reset bool) error {
	qualities := quality.Select(v.opts.Purpose)
	if v.opts.Available != nil {
		qualities = quality.Available(qualities, v.opts.Available)
	}

	v.mu.Lock()
	old := v.loader
	v.session++
	session := v.session
	l := loader.New(v.source, id, qualities, loader.Options{Logger: v.logger, PostProcess: v.opts.PostProcess})
	v.loader = l

	// deliveries of one loader are serialised
	first := true
	l.OnBinaryLoaded(func(q models.Quality, buf *models.PixelBuffer, meta models.Metadata) {
		v.dispatching.Add(1)
		defer v.dispatching.Add(-1)
		change, ok := v.display(session, id, reset, first, q, buf, meta)
		if !ok {
			return
		}
		if first {
			first = false
			v.changed.Trigger(change)
		}
	})
	l.OnLoadingFailed(func(q models.Quality, err error) {
		v.dispatching.Add(1)
		defer v.dispatching.Add(-1)
		v.mu.Lock()
		stale := session != v.session
		v.mu.Unlock()
		if stale {
			return
		}
		v.logger.Printf("viewport: %s@%s not displayed: %v", id, q, err)
		v.failed.Trigger(loader.Failure{Quality: q, Err: err})
	})
	v.mu.Unlock()

	v.retire(old)
	v.logger.Printf("viewport: set image %s %v", id, qualities)
	return l.LoadBinaries()
}

// retire destroys a replaced loader. Its late deliveries are already ignored
// by session, so from inside a callback the destruction is left to run on
// its own goroutine.
func (v *Viewport) retire(l *loader.Loader) {
	if l == nil {
		return
	}
	if v.dispatching.Load() > 0 {
		go l.Destroy()
		return
	}
	l.Destroy()
}

// display shows one arrived quality. It reports false when the arrival was
// ignored.
func (v *Viewport) display(session int, id models.ImageID, reset, first bool, q models.Quality, buf *models.PixelBuffer, meta models.Metadata) (ImageChange, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if session != v.session {
		return ImageChange{}, false
	}
	if !first && q < v.quality {
		v.logger.Printf("viewport: %s@%s arrived after %s, kept %s", id, q, v.quality, v.quality)
		return ImageChange{}, false
	}

	change := ImageChange{Previous: v.image, HadPrevious: v.hasImage, Current: id}
	old := v.resolution
	cur := buf.Resolution()

	v.image, v.hasImage = id, true
	v.quality = q
	v.resolution = cur

	if first && (reset || !v.hasView) {
		v.transform = v.fit(meta, cur)
		v.hasView = true
	} else {
		t, err := resolution.SyncViewportTransform(v.transform, old, cur)
		if err != nil {
			v.logger.Printf("viewport: cannot carry framing %s -> %s: %v", old, cur, err)
			t = v.fit(meta, cur)
		}
		v.transform = t
	}

	from, ok := v.annotationRes[id]
	if !ok {
		from = meta.OriginalResolution()
	}
	if !from.IsZero() {
		err := v.opts.Annotations.Update(id, func(anns []models.Annotation) error {
			return resolution.SyncAnnotations(anns, from, cur)
		})
		if err != nil {
			v.logger.Printf("viewport: annotations of %s not synced: %v", id, err)
		} else {
			v.annotationRes[id] = cur
		}
	}

	if v.opts.Surface != nil {
		if err := v.opts.Surface.Draw(id, q, buf, meta, v.transform); err != nil {
			v.logger.Printf("viewport: draw %s@%s: %v", id, q, err)
		}
	}
	return change, true
}

// fit returns the default framing of an image: full size when the original
// raster fits in the canvas, otherwise shrunk to fit, then expressed against
// the raster on display. Windowing comes from the image metadata.
func (v *Viewport) fit(meta models.Metadata, cur models.Resolution) models.ViewportTransform {
	t := models.ViewportTransform{
		Scale:        1,
		WindowCenter: meta.WindowCenter,
		WindowWidth:  meta.WindowWidth,
	}

	orig := meta.OriginalResolution()
	if orig.IsZero() {
		return t
	}
	canvas := v.opts.Canvas
	if !canvas.IsZero() && (orig.Width > canvas.Width || orig.Height > canvas.Height) {
		t.Scale = min(float64(canvas.Width)/float64(orig.Width), float64(canvas.Height)/float64(orig.Height))
	}

	synced, err := resolution.SyncViewportTransform(t, orig, cur)
	if err != nil {
		v.logger.Printf("viewport: cannot fit %s from %s: %v", cur, orig, err)
		return t
	}
	return synced
}

// ClearImage aborts the current downloads and empties the surface
func (v *Viewport) ClearImage() {
	v.mu.Lock()
	old := v.loader
	v.loader = nil
	v.session++
	v.hasImage = false
	v.quality = 0
	v.resolution = models.Resolution{}
	v.mu.Unlock()

	v.retire(old)
	if v.opts.Surface != nil {
		v.opts.Surface.Clear()
	}
}

// Destroy clears the viewport and detaches every subscriber
func (v *Viewport) Destroy() {
	v.destroyOnce.Do(func() {
		v.ClearImage()
		v.changed.Close()
		v.failed.Close()
	})
}

// Wait blocks until the current image has settled
func (v *Viewport) Wait(ctx context.Context) error {
	v.mu.Lock()
	l := v.loader
	v.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// Image returns the displayed image, if any
func (v *Viewport) Image() (models.ImageID, models.Quality, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.image, v.quality, v.hasImage
}

// Transform returns the current framing
func (v *Viewport) Transform() models.ViewportTransform {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transform
}

// SetTransform replaces the framing. It is expressed against the raster on
// display and is redrawn with the next arriving quality.
func (v *Viewport) SetTransform(t models.ViewportTransform) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.transform = t
	v.hasView = true
}

// Resolution returns the size of the raster on display
func (v *Viewport) Resolution() models.Resolution {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolution
}
