package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Size is the width of one encoded record in bytes. It is the addressing
	// unit of the whole log.
	Size = 5

	// Erased is the value an un-programmed flash byte reads as.
	Erased byte = 0xFF

	// PressureOffset is the pressure (Pa) stored as raw 0.
	PressureOffset = 101325
	// MinPressure and MaxPressure bound the representable pressure range.
	MinPressure = PressureOffset + math.MinInt16
	MaxPressure = PressureOffset + math.MaxInt16

	// TemperatureOffset and TemperatureScale map tenths of a degree onto 8 bits.
	TemperatureOffset float32 = -150
	TemperatureScale  float32 = 2.5

	// BatteryOffset and BatteryScale map volts onto 8 bits.
	BatteryOffset float32 = 2.0
	BatteryScale  float32 = 0.05

	// ServoOffset and ServoScale map a pulse width in µs onto raw 1..255.
	ServoOffset = 492
	ServoScale  = 8
	// NoServo marks a missing pulse width reading. It is stored as raw 0.
	NoServo uint16 = 0
	// MinServo and MaxServo bound the representable pulse widths.
	MinServo = ServoOffset + ServoScale
	MaxServo = ServoOffset + 255*ServoScale
)

var (
	// ErrReservedPattern is returned when a sample would encode to the
	// end-of-session marker.
	ErrReservedPattern = errors.New("sample encodes to the blank record pattern")
	// ErrShortBuffer is returned when a buffer is smaller than Size.
	ErrShortBuffer = errors.New("buffer shorter than record size")
)

// Blank is the end-of-session marker: a record that was never programmed.
var Blank = [Size]byte{Erased, Erased, Erased, Erased, Erased}

// Sample is one logged observation.
type Sample struct {
	Pressure    int32   // Pa
	Temperature float32 // tenths of a degree Celsius
	Battery     float32 // V
	Servo       uint16  // pulse width in µs, NoServo when absent
}

// Raw is the packed, field-by-field view of an encoded record.
type Raw struct {
	Pressure    int16
	Temperature uint8
	Battery     uint8
	Servo       uint8
}

// Bytes returns the on-device layout of r.
func (r Raw) Bytes() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(r.Pressure))
	b[2] = r.Temperature
	b[3] = r.Battery
	b[4] = r.Servo
	return b
}

// Sample returns the physical values r stands for.
func (r Raw) Sample() Sample {
	return Sample{
		Pressure:    PressureValue(r.Pressure),
		Temperature: TemperatureValue(r.Temperature),
		Battery:     BatteryValue(r.Battery),
		Servo:       ServoValue(r.Servo),
	}
}

// ToRaw quantizes s into its packed fields. It never fails; values outside a
// field's range are clamped.
func ToRaw(s Sample) Raw {
	return Raw{
		Pressure:    PressureRaw(s.Pressure),
		Temperature: TemperatureRaw(s.Temperature),
		Battery:     BatteryRaw(s.Battery),
		Servo:       ServoRaw(s.Servo),
	}
}

// RawFromBytes unpacks b into its fields.
func RawFromBytes(b []byte) (Raw, error) {
	if len(b) < Size {
		return Raw{}, fmt.Errorf("decode %d bytes: %w", len(b), ErrShortBuffer)
	}
	return Raw{
		Pressure:    int16(binary.LittleEndian.Uint16(b[0:2])),
		Temperature: b[2],
		Battery:     b[3],
		Servo:       b[4],
	}, nil
}

// Encode packs s into its fixed-width layout.
func Encode(s Sample) ([Size]byte, error) {
	var b [Size]byte
	if err := EncodeTo(b[:], s); err != nil {
		return b, err
	}
	return b, nil
}

// EncodeTo packs s into dst, which must hold at least Size bytes.
func EncodeTo(dst []byte, s Sample) error {
	if len(dst) < Size {
		return fmt.Errorf("encode into %d bytes: %w", len(dst), ErrShortBuffer)
	}
	b := ToRaw(s).Bytes()
	if b == Blank {
		return fmt.Errorf("encode %+v: %w", s, ErrReservedPattern)
	}
	copy(dst, b[:])
	return nil
}

// Decode unpacks a record. The blank pattern decodes like any other record;
// use IsBlank to tell markers apart.
func Decode(b []byte) (Sample, error) {
	r, err := RawFromBytes(b)
	if err != nil {
		return Sample{}, err
	}
	return r.Sample(), nil
}

// IsBlank reports whether the first Size bytes of b are all erased.
func IsBlank(b []byte) bool {
	if len(b) < Size {
		return false
	}
	for _, v := range b[:Size] {
		if v != Erased {
			return false
		}
	}
	return true
}

// Quantize returns the representable sample nearest to s.
func Quantize(s Sample) Sample {
	return ToRaw(s).Sample()
}

func (s Sample) String() string {
	return fmt.Sprintf("P: %d T: %.1f B: %.2f S: %d", s.Pressure, s.Temperature, s.Battery, s.Servo)
}
