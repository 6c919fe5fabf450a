// Package quality decides which qualities to request for a display purpose
package quality

import (
	"fmt"
	"strings"

	"klvviewer/internal/models"
)

// Purpose is what an image is displayed for
type Purpose int

const (
	// Diagnostic viewports load every tier, coarse to fine
	Diagnostic Purpose = iota
	// Thumbnail viewports only need the smallest tier
	Thumbnail
)

func (p Purpose) String() string {
	switch p {
	case Diagnostic:
		return "diagnostic"
	case Thumbnail:
		return "thumbnail"
	default:
		return fmt.Sprintf("Purpose(%d)", int(p))
	}
}

// ParsePurpose is the inverse of Purpose.String
func ParsePurpose(s string) (Purpose, error) {
	switch strings.ToLower(s) {
	case "diagnostic", "":
		return Diagnostic, nil
	case "thumbnail":
		return Thumbnail, nil
	default:
		return 0, fmt.Errorf("unknown purpose %q", s)
	}
}

// Select returns the qualities to request for p, lowest first
func Select(p Purpose) []models.Quality {
	switch p {
	case Thumbnail:
		return []models.Quality{models.DownscaledLow}
	default:
		return []models.Quality{models.DownscaledLow, models.DownscaledHigh, models.Lossless}
	}
}

// Available keeps the qualities of qs that appear in available, in the
// order of qs
func Available(qs, available []models.Quality) []models.Quality {
	out := make([]models.Quality, 0, len(qs))
	for _, q := range qs {
		for _, a := range available {
			if a == q {
				out = append(out, q)
				break
			}
		}
	}
	return out
}
