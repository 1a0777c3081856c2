package sample

import (
	"context"
	"errors"
	"testing"

	"github.com/itohio/goalt/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns the given readings in order, then fails.
type scripted struct {
	readings []sensor.Reading
	calls    int
}

var errExhausted = errors.New("no more readings")

func (s *scripted) Read(ctx context.Context) (sensor.Reading, error) {
	if s.calls >= len(s.readings) {
		return sensor.Reading{}, errExhausted
	}
	r := s.readings[s.calls]
	s.calls++
	return r, nil
}

func pressures(ps ...int32) []sensor.Reading {
	out := make([]sensor.Reading, len(ps))
	for i, p := range ps {
		out[i] = sensor.Reading{Pressure: p, Temperature: 200}
	}
	return out
}

func TestOversample(t *testing.T) {
	tests := []struct {
		name     string
		readings []sensor.Reading
		n        int
		want     int32
	}{
		{name: "single", readings: pressures(101325), n: 1, want: 101325},
		{name: "exact mean", readings: pressures(100, 200, 300), n: 3, want: 200},
		{name: "rounds up", readings: pressures(100, 101, 101), n: 3, want: 101},
		{name: "rounds half up", readings: pressures(100, 101), n: 2, want: 101},
		{name: "rounds below half down", readings: pressures(100, 100, 101), n: 3, want: 100},
		{name: "zero n reads once", readings: pressures(42, 1000), n: 0, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scripted{readings: tt.readings}
			r, err := Oversample(context.Background(), b, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Pressure)
			assert.Equal(t, int32(200), r.Temperature)
			assert.Equal(t, max(tt.n, 1), b.calls)
		})
	}
}

func TestOversample_NegativeValues(t *testing.T) {
	b := &scripted{readings: []sensor.Reading{
		{Pressure: 1000, Temperature: -10},
		{Pressure: 1000, Temperature: -11},
	}}
	r, err := Oversample(context.Background(), b, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(-11), r.Temperature)
}

func TestOversample_Error(t *testing.T) {
	b := &scripted{readings: pressures(1, 2)}
	_, err := Oversample(context.Background(), b, DefaultOversample)
	assert.ErrorIs(t, err, errExhausted)
	assert.Contains(t, err.Error(), "reading 3 of 20")
}

func TestDivRound(t *testing.T) {
	tests := []struct {
		v, d, want int64
	}{
		{v: 0, d: 3, want: 0},
		{v: 5, d: 2, want: 3},
		{v: 4, d: 3, want: 1},
		{v: 5, d: 3, want: 2},
		{v: -5, d: 2, want: -3},
		{v: -4, d: 3, want: -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, divRound(tt.v, tt.d), "%d/%d", tt.v, tt.d)
	}
}
