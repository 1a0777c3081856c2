// Package bmp085 reads a Bosch BMP085 (or pin compatible BMP180) barometer
// over I2C.
//
// Readings follow the datasheet integer compensation: pressure in Pa and
// temperature in tenths of a degree Celsius.
package bmp085

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/itohio/goalt/pkg/sensor"
)

// Address is the fixed I2C address of the sensor.
const Address = 0x77

const (
	regCalibration = 0xAA
	regControl     = 0xF4
	regData        = 0xF6

	cmdTemperature = 0x2E
	cmdPressure    = 0x34

	calibrationSize = 22
)

// Oversampling selects the hardware pressure oversampling setting.
type Oversampling uint8

const (
	UltraLowPower Oversampling = iota
	Standard
	HighResolution
	UltraHighResolution
)

// conversion times from the datasheet, rounded up
var (
	temperatureDelay = 5 * time.Millisecond
	pressureDelay    = [...]time.Duration{
		UltraLowPower:       5 * time.Millisecond,
		Standard:            8 * time.Millisecond,
		HighResolution:      14 * time.Millisecond,
		UltraHighResolution: 26 * time.Millisecond,
	}
)

// Bus is an I2C controller. machine.I2C satisfies it.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

type calibration struct {
	ac1, ac2, ac3 int16
	ac4, ac5, ac6 uint16
	b1, b2        int16
	mb, mc, md    int16
}

// Device is a BMP085 on an I2C bus.
type Device struct {
	bus  Bus
	addr uint16
	oss  Oversampling
	cal  calibration

	sleep func(time.Duration)
}

var _ sensor.Barometer = (*Device)(nil)

// New creates a driver for the sensor on bus. Call Configure before Read.
func New(bus Bus) *Device {
	return &Device{
		bus:   bus,
		addr:  Address,
		oss:   UltraHighResolution,
		sleep: time.Sleep,
	}
}

// SetOversampling changes the pressure oversampling setting.
func (d *Device) SetOversampling(oss Oversampling) {
	if oss > UltraHighResolution {
		oss = UltraHighResolution
	}
	d.oss = oss
}

// Configure reads the factory calibration from the sensor EEPROM.
func (d *Device) Configure() error {
	var b [calibrationSize]byte
	if err := d.bus.Tx(d.addr, []byte{regCalibration}, b[:]); err != nil {
		return fmt.Errorf("read calibration: %w", err)
	}

	words := make([]uint16, calibrationSize/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[2*i:])
		// all zeros or all ones means the bus read nothing
		if words[i] == 0 || words[i] == 0xFFFF {
			return fmt.Errorf("invalid calibration word %d: %#04x", i, words[i])
		}
	}

	d.cal = calibration{
		ac1: int16(words[0]), ac2: int16(words[1]), ac3: int16(words[2]),
		ac4: words[3], ac5: words[4], ac6: words[5],
		b1: int16(words[6]), b2: int16(words[7]),
		mb: int16(words[8]), mc: int16(words[9]), md: int16(words[10]),
	}
	return nil
}

// Read runs one temperature and one pressure conversion.
func (d *Device) Read(ctx context.Context) (sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Reading{}, err
	}

	ut, err := d.rawTemperature()
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("bmp085 temperature: %w", err)
	}
	up, err := d.rawPressure()
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("bmp085 pressure: %w", err)
	}

	t, p := d.cal.compensate(ut, up, d.oss)
	return sensor.Reading{Pressure: p, Temperature: t}, nil
}

func (d *Device) rawTemperature() (int32, error) {
	if err := d.bus.Tx(d.addr, []byte{regControl, cmdTemperature}, nil); err != nil {
		return 0, err
	}
	d.sleep(temperatureDelay)

	var b [2]byte
	if err := d.bus.Tx(d.addr, []byte{regData}, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint16(b[:])), nil
}

func (d *Device) rawPressure() (int32, error) {
	if err := d.bus.Tx(d.addr, []byte{regControl, cmdPressure + byte(d.oss)<<6}, nil); err != nil {
		return 0, err
	}
	d.sleep(pressureDelay[d.oss])

	var b [3]byte
	if err := d.bus.Tx(d.addr, []byte{regData}, b[:]); err != nil {
		return 0, err
	}
	up := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	return up >> (8 - d.oss), nil
}

// compensate converts raw readings to tenths of °C and Pa.
func (c calibration) compensate(ut, up int32, oss Oversampling) (temperature, pressure int32) {
	x1 := (ut - int32(c.ac6)) * int32(c.ac5) >> 15
	x2 := int32(c.mc) << 11 / (x1 + int32(c.md))
	b5 := x1 + x2
	temperature = (b5 + 8) >> 4

	b6 := b5 - 4000
	x1 = (int32(c.b2) * (b6 * b6 >> 12)) >> 11
	x2 = int32(c.ac2) * b6 >> 11
	x3 := x1 + x2
	b3 := ((int32(c.ac1)*4+x3)<<oss + 2) / 4

	x1 = int32(c.ac3) * b6 >> 13
	x2 = (int32(c.b1) * (b6 * b6 >> 12)) >> 16
	x3 = (x1 + x2 + 2) >> 2
	b4 := uint32(c.ac4) * uint32(x3+32768) >> 15
	b7 := uint32(up-b3) * (50000 >> oss)

	var p int32
	if b7 < 0x80000000 {
		p = int32(b7 * 2 / b4)
	} else {
		p = int32(b7 / b4 * 2)
	}

	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	pressure = p + (x1+x2+3791)>>4
	return temperature, pressure
}
