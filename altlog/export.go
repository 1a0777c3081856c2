package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/datastore"
	"github.com/itohio/goalt/pkg/flight"
	"github.com/itohio/goalt/pkg/sample"
)

var csvHeader = []string{
	"session", "time_s", "pressure_pa", "temperature_c", "battery_v", "servo_us", "height",
}

// writeCSV writes one row per record. Each session is decimated to maxPoints
// rows when maxPoints is positive. Heights are relative to the start of each
// session in the configured units.
func writeCSV(w io.Writer, sessions []datastore.Session, cfg *config.Config, maxPoints int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv write header: %w", err)
	}

	interval := cfg.Logging.Interval.Seconds()
	for _, s := range sessions {
		sum := flight.Analyze(s.Samples, cfg.Logging.Interval, cfg.Flight)

		times := make([]float64, len(s.Samples))
		for i := range times {
			times[i] = float64(i) * interval
		}

		// equal lengths decimate to the same indices
		samples := sample.Downsample(nil, s.Samples, maxPoints)
		heights := sample.DownsampleHeights(nil, sum.Heights, maxPoints)
		times = sample.DownsampleHeights(nil, times, maxPoints)

		session := strconv.Itoa(s.Index)
		for i, smp := range samples {
			_ = cw.Write([]string{ // error is buffered; checked on Flush
				session,
				strconv.FormatFloat(times[i], 'f', 3, 64),
				strconv.FormatInt(int64(smp.Pressure), 10),
				strconv.FormatFloat(float64(smp.Temperature)/10, 'f', 2, 64),
				strconv.FormatFloat(float64(smp.Battery), 'f', 2, 32),
				strconv.FormatUint(uint64(smp.Servo), 10),
				strconv.FormatFloat(heights[i], 'f', 2, 64),
			})
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return nil
}
