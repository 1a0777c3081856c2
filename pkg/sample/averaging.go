// Package sample reduces sensor readings to log records and log records to
// display series.
package sample

import (
	"context"
	"fmt"

	"github.com/itohio/goalt/pkg/sensor"
)

// DefaultOversample is the number of barometer readings averaged per record.
const DefaultOversample = 20

// Oversample reads the barometer n times and returns the average reading,
// rounded to the nearest integer. A non-positive n reads once.
func Oversample(ctx context.Context, b sensor.Barometer, n int) (sensor.Reading, error) {
	if n <= 0 {
		n = 1 // No averaging if invalid
	}

	var sumPressure, sumTemperature int64
	for i := range n {
		r, err := b.Read(ctx)
		if err != nil {
			return sensor.Reading{}, fmt.Errorf("oversample reading %d of %d: %w", i+1, n, err)
		}
		sumPressure += int64(r.Pressure)
		sumTemperature += int64(r.Temperature)
	}

	return sensor.Reading{
		Pressure:    int32(divRound(sumPressure, int64(n))),
		Temperature: int32(divRound(sumTemperature, int64(n))),
	}, nil
}

// divRound divides rounding half away from zero. d must be positive.
func divRound(v, d int64) int64 {
	if v < 0 {
		return -((-v + d/2) / d)
	}
	return (v + d/2) / d
}
