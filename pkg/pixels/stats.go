package pixels

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"klvviewer/internal/models"
)

// Statistics summarizes the sample values of a buffer. For color buffers the
// alpha channel is ignored.
type Statistics struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Stats computes sample statistics of buf. An empty buffer yields zero values.
func Stats(buf *models.PixelBuffer) Statistics {
	values := Values(buf)
	if len(values) == 0 {
		return Statistics{}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return Statistics{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}

// Values returns the samples of buf as float64, skipping alpha
func Values(buf *models.PixelBuffer) []float64 {
	n := buf.Len()
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if buf.Channels == models.ColorChannels && i%4 == 3 {
			continue
		}
		out = append(out, float64(buf.Sample(i)))
	}
	return out
}
