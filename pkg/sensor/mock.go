package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/goalt/pkg/config"
)

const (
	// GroundHold is how long the simulated model sits on the ground before
	// launch.
	GroundHold = 5 * time.Second

	// lapseRate is the temperature drop in tenths of °C per metre.
	lapseRate = 0.065
	// batteryDroop is the voltage lost per second of flight.
	batteryDroop = 0.0005
)

// Mock simulates the sensors of a glider on a climb and glide flight.
//
// The flight holds on the ground for GroundHold, climbs at ClimbRate up to
// MaxHeight, then sinks at SinkRate back to the ground.
type Mock struct {
	cfg config.MockConfig

	mu     sync.Mutex
	now    func() time.Time
	start  time.Time
	offset time.Duration
	err    error
	reads  int
}

// NewMock creates a simulated sensor set. A nil cfg uses the defaults.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}

	m := &Mock{
		cfg: *cfg,
		now: time.Now,
	}
	m.start = m.now()
	return m
}

// Advance moves the simulated flight forward by d without waiting.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset += d
}

// Elapsed returns the simulated flight time.
func (m *Mock) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed()
}

// SetError makes every subsequent read fail with err. A nil err clears it.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Reads returns the number of barometer reads so far.
func (m *Mock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Read returns the simulated pressure and temperature at the current height.
func (m *Mock) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Reading{}, fmt.Errorf("barometer: %w", m.err)
	}
	m.reads++

	elapsed := m.elapsed()
	h := float32(m.Height(elapsed))
	p := Pressure(float32(m.cfg.GroundPressure), h)

	// Deterministic noise from two incommensurate tones
	ns := float32(elapsed.Nanoseconds())
	p += (math32.Sin(ns*0.001) + math32.Cos(ns*0.0013)) * float32(m.cfg.NoiseLevel) * 0.5

	return Reading{
		Pressure:    int32(math32.Round(p)),
		Temperature: m.cfg.GroundTemperature - int32(math32.Round(h*lapseRate)),
	}, nil
}

// Voltage returns the simulated battery voltage.
func (m *Mock) Voltage(ctx context.Context) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, fmt.Errorf("battery: %w", m.err)
	}
	v := m.cfg.Battery - float32(m.elapsed().Seconds())*batteryDroop
	return math32.Max(v, 0), nil
}

// PulseWidth returns the configured servo pulse width.
func (m *Mock) PulseWidth(ctx context.Context) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, fmt.Errorf("servo: %w", m.err)
	}
	return m.cfg.Servo, nil
}

// Height returns the simulated height in metres after elapsed flight time.
func (m *Mock) Height(elapsed time.Duration) float64 {
	t := (elapsed - GroundHold).Seconds()
	if t <= 0 || m.cfg.ClimbRate <= 0 {
		return 0
	}

	climbTime := m.cfg.MaxHeight / m.cfg.ClimbRate
	if t < climbTime {
		return t * m.cfg.ClimbRate
	}
	if m.cfg.SinkRate <= 0 {
		return m.cfg.MaxHeight
	}

	h := m.cfg.MaxHeight - (t-climbTime)*m.cfg.SinkRate
	if h < 0 {
		return 0
	}
	return h
}

// elapsed must be called with mu held.
func (m *Mock) elapsed() time.Duration {
	return m.now().Sub(m.start) + m.offset
}

// Pressure returns the standard atmosphere pressure at height h metres above
// a point where the pressure is base.
func Pressure(base, h float32) float32 {
	return base * math32.Pow(1-h/44330, 5.25)
}
