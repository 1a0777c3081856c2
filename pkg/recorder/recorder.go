// Package recorder runs the logging loop: sample the sensors on a fixed
// interval and append one record per tick to the log.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/datastore"
	"github.com/itohio/goalt/pkg/record"
	"github.com/itohio/goalt/pkg/sample"
	"github.com/itohio/goalt/pkg/sensor"
)

// ErrStorageFull is returned by Run when the log has no room for another record.
var ErrStorageFull = errors.New("storage full")

// Stats describes what a recorder has logged.
type Stats struct {
	Entries  int // records written by this recorder
	Sessions int // sessions this recorder ended
	Current  int // records in the open session

	Last record.Sample
}

// Recorder appends sensor samples to a store.
type Recorder struct {
	store   *datastore.Store
	sensors sensor.Set
	cfg     config.LoggingConfig

	mu    sync.Mutex
	stats Stats

	cbMu     sync.RWMutex
	onFull   []func()
	onSample []func(record.Sample)
}

// New creates a recorder. Zero logging settings fall back to the defaults.
func New(store *datastore.Store, sensors sensor.Set, cfg config.LoggingConfig) *Recorder {
	def := config.Default().Logging
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = def.Oversample
	}

	return &Recorder{
		store:   store,
		sensors: sensors,
		cfg:     cfg,
	}
}

// OnFull registers a callback invoked once the log fills up.
func (r *Recorder) OnFull(fn func()) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.onFull = append(r.onFull, fn)
}

// OnSample registers a callback invoked after each appended record.
func (r *Recorder) OnSample(fn func(record.Sample)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.onSample = append(r.onSample, fn)
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run logs one record every interval until ctx is done or the log is full.
//
// Cancellation ends the open session and returns nil. A full log ends the
// session, notifies OnFull callbacks and returns ErrStorageFull. Sensor and
// device errors are returned as they are; the session is left open.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.EndSession()
			return nil
		case <-ticker.C:
		}

		ok, err := r.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.EndSession()
				return nil
			}
			return err
		}
		if !ok {
			log.Printf("Recorder: storage full at %d bytes, ending session", r.store.WriteCursor())
			r.EndSession()
			r.notifyFull()
			return ErrStorageFull
		}
	}
}

// Step samples the sensors and appends one record. It returns false when the
// log is full.
func (r *Recorder) Step(ctx context.Context) (bool, error) {
	smp, err := r.SampleOnce(ctx)
	if err != nil {
		log.Printf("Recorder: failed to sample sensors: %v", err)
		return false, err
	}

	ok, err := r.store.AddEntry(ctx, smp)
	if errors.Is(err, record.ErrReservedPattern) {
		// one pascal up moves the pressure field off 0xffff
		log.Printf("Recorder: sample %v encodes to the end marker, logging %d Pa instead", smp, smp.Pressure+1)
		smp.Pressure++
		ok, err = r.store.AddEntry(ctx, smp)
	}
	if err != nil {
		log.Printf("Recorder: failed to append record: %v", err)
		return false, fmt.Errorf("append record: %w", err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.stats.Entries++
	r.stats.Current++
	r.stats.Last = smp
	r.mu.Unlock()

	r.notifySample(smp)
	return true, nil
}

// SampleOnce reads every sensor once and returns the record to log.
// Pressure and temperature are oversampled.
func (r *Recorder) SampleOnce(ctx context.Context) (record.Sample, error) {
	reading, err := sample.Oversample(ctx, r.sensors.Barometer, r.cfg.Oversample)
	if err != nil {
		return record.Sample{}, err
	}

	smp := record.Sample{
		Pressure:    reading.Pressure,
		Temperature: float32(reading.Temperature),
		Servo:       record.NoServo,
	}

	if r.sensors.Battery != nil {
		smp.Battery, err = r.sensors.Battery.Voltage(ctx)
		if err != nil {
			return record.Sample{}, err
		}
	}
	if r.sensors.Servo != nil {
		smp.Servo, err = r.sensors.Servo.PulseWidth(ctx)
		if err != nil {
			return record.Sample{}, err
		}
	}

	return smp, nil
}

// EndSession writes the end-of-session marker if the open session holds any
// records. It returns false when there was nothing to end or no room left.
func (r *Recorder) EndSession() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stats.Current == 0 {
		return false
	}
	if !r.store.AddFileEndMarker() {
		log.Printf("Recorder: no room for the end-of-session marker")
		return false
	}

	r.stats.Current = 0
	r.stats.Sessions++
	return true
}

func (r *Recorder) notifyFull() {
	r.cbMu.RLock()
	callbacks := make([]func(), len(r.onFull))
	copy(callbacks, r.onFull)
	r.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (r *Recorder) notifySample(smp record.Sample) {
	r.cbMu.RLock()
	callbacks := make([]func(record.Sample), len(r.onSample))
	copy(callbacks, r.onSample)
	r.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(smp)
	}
}
