// Package flight turns a logged session into heights and a flight summary.
package flight

import (
	"math"
	"time"

	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/record"
)

// Units for Altitude.
const (
	Metres = 1.0
	Feet   = 3.281
)

// Altitude returns the height of pressure above the base pressure using the
// international barometric formula, scaled by units per metre.
func Altitude(pressure, base int32, units float64) float64 {
	if base <= 0 || pressure <= 0 {
		return 0
	}
	return units * 44330 * (1 - math.Pow(float64(pressure)/float64(base), 1/5.25))
}

// Summary describes one flight.
type Summary struct {
	Samples  int
	Duration time.Duration

	BasePressure float64 // Pa, mean of the first base samples

	// Heights holds one height per sample in the configured units.
	Heights []float64
	// ClimbRates holds n-1 rates in m/s; ClimbRates[i] is the change from
	// sample i to sample i+1.
	ClimbRates []float64

	MaxHeight      float64
	MaxHeightIndex int
	MaxClimbRate   float64

	Launched     bool
	LaunchIndex  int     // sample the climb started from
	LaunchHeight float64 // height at LaunchIndex
	DetectIndex  int     // sample where the climb was confirmed

	MinBattery float32 // V
}

// Analyze computes heights, climb rates and launch point of samples logged
// every interval.
func Analyze(samples []record.Sample, interval time.Duration, cfg config.FlightConfig) Summary {
	s := Summary{
		Samples:        len(samples),
		MaxHeightIndex: -1,
		LaunchIndex:    -1,
		DetectIndex:    -1,
	}
	if len(samples) == 0 {
		return s
	}
	if len(samples) > 1 {
		s.Duration = time.Duration(len(samples)-1) * interval
	}

	units := cfg.HeightUnits
	if units <= 0 {
		units = Metres
	}

	s.BasePressure = basePressure(samples, cfg.BaseSamples)
	base := int32(math.Round(s.BasePressure))

	metres := make([]float64, len(samples))
	s.Heights = make([]float64, len(samples))
	s.MinBattery = samples[0].Battery
	for i, smp := range samples {
		metres[i] = Altitude(smp.Pressure, base, Metres)
		s.Heights[i] = metres[i] * units

		if i == 0 || s.Heights[i] > s.MaxHeight {
			s.MaxHeight = s.Heights[i]
			s.MaxHeightIndex = i
		}
		s.MinBattery = min(s.MinBattery, smp.Battery)
	}

	s.ClimbRates = derivatives(metres, interval)
	for i, r := range s.ClimbRates {
		if i == 0 || r > s.MaxClimbRate {
			s.MaxClimbRate = r
		}
	}

	detect := detectLaunch(s.ClimbRates, interval, cfg)
	if detect >= 0 {
		s.Launched = true
		s.DetectIndex = detect
		s.LaunchIndex = seekback(metres, detect, cfg.LaunchSeekbackSamples)
		s.LaunchHeight = s.Heights[s.LaunchIndex]
	}

	return s
}

// basePressure averages the first n samples.
func basePressure(samples []record.Sample, n int) float64 {
	n = max(1, min(n, len(samples)))

	var sum int64
	for _, smp := range samples[:n] {
		sum += int64(smp.Pressure)
	}
	return float64(sum) / float64(n)
}

// derivatives returns (h[i+1] - h[i]) / dt for every sample pair.
func derivatives(h []float64, interval time.Duration) []float64 {
	if len(h) < 2 {
		return nil
	}

	dt := interval.Seconds()
	out := make([]float64, len(h)-1)
	if dt <= 0 {
		return out
	}
	for i := range out {
		out[i] = (h[i+1] - h[i]) / dt
	}
	return out
}

// detectLaunch returns the sample index at which the climb rate has exceeded
// the threshold for the configured time, or -1.
func detectLaunch(rates []float64, interval time.Duration, cfg config.FlightConfig) int {
	if interval <= 0 {
		return -1
	}

	// whole intervals needed to cover the climb time
	need := int((cfg.LaunchClimbTime + interval - 1) / interval)
	need = max(need, 1)

	run := 0
	for i, r := range rates {
		if r > cfg.LaunchClimbThreshold {
			run++
		} else {
			run = 0
		}
		if run >= need {
			return i + 1
		}
	}
	return -1
}

// seekback returns the index of the lowest height in the n samples before
// detect, inclusive of detect.
func seekback(h []float64, detect, n int) int {
	from := max(0, detect-n)

	best := detect
	for i := detect; i >= from; i-- {
		if h[i] < h[best] {
			best = i
		}
	}
	return best
}
