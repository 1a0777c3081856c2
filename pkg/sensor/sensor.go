// Package sensor defines the sensors the logger samples and a simulated flight
// that stands in for them.
package sensor

import "context"

// Reading is one barometer measurement.
type Reading struct {
	Pressure    int32 // Pa
	Temperature int32 // tenths of °C
}

// Barometer measures static pressure and temperature.
type Barometer interface {
	Read(ctx context.Context) (Reading, error)
}

// Battery measures the supply voltage.
type Battery interface {
	Voltage(ctx context.Context) (float32, error)
}

// Servo measures the receiver pulse width. A zero width means no pulse was
// seen.
type Servo interface {
	PulseWidth(ctx context.Context) (uint16, error)
}

// Set groups the sensors sampled for one log record. Servo may be nil when no
// receiver is connected.
type Set struct {
	Barometer Barometer
	Battery   Battery
	Servo     Servo
}

// Ensure Mock implements all sensors.
var (
	_ Barometer = (*Mock)(nil)
	_ Battery   = (*Mock)(nil)
	_ Servo     = (*Mock)(nil)
)

// Set returns a sensor set backed entirely by the mock.
func (m *Mock) Set() Set {
	return Set{Barometer: m, Battery: m, Servo: m}
}
