package models

import (
	"github.com/paulmach/orb"
)

// ViewportTransform is the display state of one viewport. Pan and Scale are
// expressed against the resolution of the raster currently displayed, so they
// have to follow resolution swaps. Windowing is resolution independent.
type ViewportTransform struct {
	Scale        float64
	Pan          orb.Point
	WindowCenter float64
	WindowWidth  float64
	Invert       bool
}

// Annotation groups the records drawn by one tool on one image
type Annotation struct {
	// Tool is the annotation tool type (length, angle, ellipticalRoi, ...)
	Tool string `yaml:"tool"`

	Records []AnnotationRecord `yaml:"records"`
}

// AnnotationRecord is one drawn measurement
type AnnotationRecord struct {
	ID string `yaml:"id"`

	// Handles are anchor points in image pixel coordinates
	Handles []orb.Point `yaml:"handles"`

	// Lengths are pixel-space distances attached to the record (radii, widths)
	Lengths []float64 `yaml:"lengths,omitempty"`
}

// Bound returns the bounding box of the record handles
func (r AnnotationRecord) Bound() orb.Bound {
	return orb.MultiPoint(r.Handles).Bound()
}
