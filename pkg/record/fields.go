package record

import (
	"math"

	"github.com/chewxy/math32"
)

// PressureRaw maps a pressure in Pa onto the signed 16-bit field.
func PressureRaw(p int32) int16 {
	d := int64(p) - PressureOffset
	if d < math.MinInt16 {
		return math.MinInt16
	}
	if d > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(d)
}

// PressureValue is the inverse of PressureRaw.
func PressureValue(raw int16) int32 {
	return int32(raw) + PressureOffset
}

// TemperatureRaw maps tenths of a degree onto the 8-bit field.
func TemperatureRaw(t float32) uint8 {
	return affineRaw(t, TemperatureOffset, TemperatureScale)
}

// TemperatureValue is the inverse of TemperatureRaw.
func TemperatureValue(raw uint8) float32 {
	return float32(raw)*TemperatureScale + TemperatureOffset
}

// BatteryRaw maps a battery voltage onto the 8-bit field.
func BatteryRaw(v float32) uint8 {
	return affineRaw(v, BatteryOffset, BatteryScale)
}

// BatteryValue is the inverse of BatteryRaw.
func BatteryValue(raw uint8) float32 {
	return float32(raw)*BatteryScale + BatteryOffset
}

// ServoRaw maps a pulse width in µs onto the 8-bit field. Raw 0 is kept for
// NoServo; every real reading lands on 1..255.
func ServoRaw(us uint16) uint8 {
	if us == NoServo {
		return 0
	}
	d := int(us) - ServoOffset
	if d <= ServoScale {
		return 1
	}
	raw := (d + ServoScale/2) / ServoScale
	if raw > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(raw)
}

// ServoValue is the inverse of ServoRaw.
func ServoValue(raw uint8) uint16 {
	if raw == 0 {
		return NoServo
	}
	return ServoOffset + uint16(raw)*ServoScale
}

// affineRaw computes round((v - offset) / scale) clamped to 0..255.
func affineRaw(v, offset, scale float32) uint8 {
	if math32.IsNaN(v) {
		return 0
	}
	raw := math32.Round((v - offset) / scale)
	if raw <= 0 {
		return 0
	}
	if raw >= math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(raw)
}
