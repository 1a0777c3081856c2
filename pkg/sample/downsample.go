package sample

import "github.com/itohio/goalt/pkg/record"

// Downsample downsamples a slice of samples to a maximum number of points.
// Uses simple decimation to reduce the number of points for display.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// A non-positive maxPoints disables decimation.
func Downsample(dst []record.Sample, samples []record.Sample, maxPoints int) []record.Sample {
	return decimate(dst, samples, maxPoints)
}

// DownsampleHeights is Downsample for a height or climb rate series.
func DownsampleHeights(dst []float64, heights []float64, maxPoints int) []float64 {
	return decimate(dst, heights, maxPoints)
}

func decimate[T any](dst []T, src []T, maxPoints int) []T {
	if maxPoints <= 0 || len(src) <= maxPoints {
		// Need to copy everything
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
			copy(dst, src)
			return dst
		}
		result := make([]T, len(src))
		copy(result, src)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0] // Reset length but keep capacity
	} else {
		dst = make([]T, 0, maxPoints)
	}

	// Calculate step size for decimation
	step := float64(len(src)) / float64(maxPoints)

	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}

	return dst
}
