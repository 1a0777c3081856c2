package sample

import (
	"testing"

	"github.com/itohio/goalt/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSamples(n int) []record.Sample {
	samples := make([]record.Sample, n)
	for i := range n {
		samples[i] = record.Sample{
			Pressure:    int32(101325 - i),
			Temperature: 20,
			Battery:     4.2,
		}
	}
	return samples
}

func TestDownsample_NoDownsampling(t *testing.T) {
	samples := makeSamples(3)

	// Test with nil dst
	result := Downsample(nil, samples, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, samples, result)

	// Test with sufficient capacity dst
	dst := make([]record.Sample, 0, 10)
	result = Downsample(dst, samples, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, samples, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	samples := makeSamples(100)

	// Downsample to 10 points
	dst := make([]record.Sample, 0, 20)
	result := Downsample(dst, samples, 10)
	require.Equal(t, 10, len(result))
	assert.Equal(t, cap(dst), cap(result))

	// Should always include first sample
	assert.Equal(t, samples[0], result[0])
	for i, s := range result {
		assert.Equal(t, samples[i*10], s)
	}
}

func TestDownsample_SmallDst(t *testing.T) {
	samples := makeSamples(50)
	dst := make([]record.Sample, 0, 2)

	result := Downsample(dst, samples, 7)
	require.Len(t, result, 7)
	assert.GreaterOrEqual(t, cap(result), 7)

	result = Downsample(dst, samples[:5], 7)
	assert.Equal(t, samples[:5], result)
}

func TestDownsample_Unlimited(t *testing.T) {
	samples := makeSamples(30)
	assert.Equal(t, samples, Downsample(nil, samples, 0))
	assert.Empty(t, Downsample(nil, nil, 5))
}

func TestDownsampleHeights(t *testing.T) {
	heights := make([]float64, 1000)
	for i := range heights {
		heights[i] = float64(i) * 0.5
	}

	result := DownsampleHeights(nil, heights, 100)
	require.Len(t, result, 100)
	assert.Equal(t, 0.0, result[0])
	assert.Equal(t, 495.0, result[99])
}
