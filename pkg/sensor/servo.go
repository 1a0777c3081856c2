package sensor

import (
	"context"
	"math"
	"time"
)

// DefaultPulseTimeout bounds one pulse measurement. A receiver repeats its
// pulse every 20 ms or so.
const DefaultPulseTimeout = 28 * time.Millisecond

// InputPin is a digital input. machine.Pin satisfies it.
type InputPin interface {
	Get() bool
}

// PulseServo measures the high time of a receiver channel by polling a pin.
type PulseServo struct {
	pin     InputPin
	timeout time.Duration
	now     func() time.Time
}

var _ Servo = (*PulseServo)(nil)

// NewPulseServo creates a pulse reader on pin. Zero timeout selects
// DefaultPulseTimeout.
func NewPulseServo(pin InputPin, timeout time.Duration) *PulseServo {
	if timeout <= 0 {
		timeout = DefaultPulseTimeout
	}
	return &PulseServo{pin: pin, timeout: timeout, now: time.Now}
}

// PulseWidth waits for the next complete high pulse and returns its width in
// µs. It returns 0 when no pulse completes within the timeout, which is what a
// disconnected receiver looks like.
func (s *PulseServo) PulseWidth(ctx context.Context) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deadline := s.now().Add(s.timeout)
	wait := func(level bool) bool {
		for s.pin.Get() == level {
			if s.now().After(deadline) {
				return false
			}
		}
		return true
	}

	// skip a pulse already in progress
	if !wait(true) || !wait(false) {
		return 0, nil
	}
	start := s.now()
	if !wait(true) {
		return 0, nil
	}

	width := s.now().Sub(start).Microseconds()
	if width > math.MaxUint16 {
		return 0, nil
	}
	return uint16(width), nil
}
