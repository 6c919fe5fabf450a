package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ImageID identifies one frame of one instance. Together with a Quality it
// is the key of every request and cache entry.
type ImageID struct {
	// InstanceID is the server-side identifier of the instance
	InstanceID string

	// Frame is the zero-based frame index within the instance
	Frame uint32
}

// String renders the id as "instance:frame"
func (id ImageID) String() string {
	return id.InstanceID + ":" + strconv.FormatUint(uint64(id.Frame), 10)
}

// ParseImageID parses "instance[:frame]". A missing frame means frame 0.
func ParseImageID(s string) (ImageID, error) {
	instance, frame, found := strings.Cut(s, ":")
	if instance == "" {
		return ImageID{}, fmt.Errorf("invalid image id %q: empty instance", s)
	}
	if !found || frame == "" {
		return ImageID{InstanceID: instance}, nil
	}
	n, err := strconv.ParseUint(frame, 10, 32)
	if err != nil {
		return ImageID{}, fmt.Errorf("invalid image id %q: %w", s, err)
	}
	return ImageID{InstanceID: instance, Frame: uint32(n)}, nil
}

// Quality is a fidelity tier of one image. Values are ordered by fidelity,
// Lossless being the highest and terminal one.
type Quality int

const (
	DownscaledLow Quality = iota + 1
	DownscaledHigh
	Lossless
)

// Qualities lists every quality in ascending fidelity
var Qualities = []Quality{DownscaledLow, DownscaledHigh, Lossless}

func (q Quality) String() string {
	switch q {
	case DownscaledLow:
		return "low"
	case DownscaledHigh:
		return "high"
	case Lossless:
		return "lossless"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// Valid reports whether q is one of the known qualities
func (q Quality) Valid() bool {
	return q >= DownscaledLow && q <= Lossless
}

// ParseQuality is the inverse of Quality.String
func ParseQuality(s string) (Quality, error) {
	for _, q := range Qualities {
		if q.String() == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quality %q", s)
}

// Resolution is a raster size in pixels
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether no resolution has been recorded yet
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Metadata holds the acquisition and display fields carried by a container
// alongside the compressed pixels.
type Metadata struct {
	Color       bool
	Height      uint32
	Width       uint32
	SizeInBytes uint32

	// Physical size of a pixel in mm
	ColumnPixelSpacing float64
	RowPixelSpacing    float64

	// Sample range and linear rescale
	MinPixelValue int64
	MaxPixelValue int64
	Slope         float64
	Intercept     float64

	// Default display windowing
	WindowCenter float64
	WindowWidth  float64

	IsSigned bool

	// Stretched is set when the dynamic range was remapped to 8 bits
	// before compression and must be expanded back on decode
	Stretched bool

	// Compression is the codec tag as found on the wire ("Jpeg" or "Png")
	Compression string

	// OriginalHeight and OriginalWidth are the size of the image before
	// any server-side downscaling
	OriginalHeight uint32
	OriginalWidth  uint32
}

// Resolution returns the size of the delivered raster
func (m Metadata) Resolution() Resolution {
	return Resolution{Width: int(m.Width), Height: int(m.Height)}
}

// OriginalResolution returns the reference size before downscaling
func (m Metadata) OriginalResolution() Resolution {
	return Resolution{Width: int(m.OriginalWidth), Height: int(m.OriginalHeight)}
}

// RequestState is the lifecycle of one quality request
type RequestState int

const (
	// Pending requests wait for a decode unit
	Pending RequestState = iota
	// Active requests are held by a decode unit
	Active
	Done
	Aborted
	Failed
)

func (s RequestState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("RequestState(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s RequestState) Terminal() bool {
	return s == Done || s == Aborted || s == Failed
}
