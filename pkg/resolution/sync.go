// Package resolution keeps viewport framing and annotation geometry stable
// when the displayed raster of an image is replaced by one of another size.
package resolution

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"klvviewer/internal/models"
)

var (
	ErrInvalidResolution = errors.New("resolution: width and height must be positive")
	ErrAspectMismatch    = errors.New("resolution: aspect ratios differ")
)

// Factor returns to.Width / from.Width. Both resolutions must describe the
// same image: their aspect ratios may differ by one pixel of rounding at most.
func Factor(from, to models.Resolution) (float64, error) {
	if from.Width <= 0 || from.Height <= 0 || to.Width <= 0 || to.Height <= 0 {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidResolution, from, to)
	}
	// cross-multiplied to stay in integers
	diff := to.Height*from.Width - from.Height*to.Width
	if diff < 0 {
		diff = -diff
	}
	if diff > max(from.Width, to.Width) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrAspectMismatch, from, to)
	}
	return float64(to.Width) / float64(from.Width), nil
}

// SyncViewportTransform returns t adjusted so that the same region stays
// framed after the displayed raster goes from one size to the other.
// Windowing is untouched.
func SyncViewportTransform(t models.ViewportTransform, from, to models.Resolution) (models.ViewportTransform, error) {
	if from == to {
		return t, nil
	}
	f, err := Factor(from, to)
	if err != nil {
		return t, err
	}
	t.Scale /= f
	t.Pan[0] *= f
	t.Pan[1] *= f
	return t, nil
}

// SyncAnnotations rescales every handle and length of anns in place. Records
// keep their identity and order. Nothing is modified on error.
func SyncAnnotations(anns []models.Annotation, from, to models.Resolution) error {
	if from == to {
		return nil
	}
	f, err := Factor(from, to)
	if err != nil {
		return err
	}
	for i := range anns {
		for j := range anns[i].Records {
			r := &anns[i].Records[j]
			for k := range r.Handles {
				r.Handles[k][0] *= f
				r.Handles[k][1] *= f
			}
			floats.Scale(f, r.Lengths)
		}
	}
	return nil
}
