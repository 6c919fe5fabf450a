package pixels

import (
	"math"
)

// Stretching is a linear remapping of a source range onto a target range.
// Lossy containers carry 8-bit samples whose original dynamic range was
// squeezed into [0, 255]; the decoder uses a Stretching to expand them back to
// [MinPixelValue, MaxPixelValue].
type Stretching struct {
	LowSource  float64
	HighSource float64
	LowTarget  float64
	HighTarget float64
}

// NewStretching maps [0, 255] onto [low, high]
func NewStretching(low, high int64) Stretching {
	return Stretching{
		LowSource:  0,
		HighSource: 255,
		LowTarget:  float64(low),
		HighTarget: float64(high),
	}
}

// Scale returns (highTarget - lowTarget) / (highSource - lowSource)
func (s Stretching) Scale() float64 {
	return (s.HighTarget - s.LowTarget) / (s.HighSource - s.LowSource)
}

// Offset returns lowTarget - scale*lowSource
func (s Stretching) Offset() float64 {
	return s.LowTarget - s.Scale()*s.LowSource
}

// Apply remaps one sample
func (s Stretching) Apply(v float64) float64 {
	return s.Scale()*v + s.Offset()
}

// Inverse returns the mapping from the target range back to the source range
func (s Stretching) Inverse() Stretching {
	return Stretching{
		LowSource:  s.LowTarget,
		HighSource: s.HighTarget,
		LowTarget:  s.LowSource,
		HighTarget: s.HighSource,
	}
}

// StretchTo16 writes the remapped 8-bit samples into a 16-bit slice.
// Results are rounded to the nearest integer and clamped to the element range.
func StretchTo16(samples []uint8, s Stretching, signed bool) ([]uint16, []int16) {
	scale, offset := s.Scale(), s.Offset()
	if signed {
		out := make([]int16, len(samples))
		for i, v := range samples {
			out[i] = int16(clamp(math.Round(scale*float64(v)+offset), math.MinInt16, math.MaxInt16))
		}
		return nil, out
	}
	out := make([]uint16, len(samples))
	for i, v := range samples {
		out[i] = uint16(clamp(math.Round(scale*float64(v)+offset), 0, math.MaxUint16))
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
