package main

import (
	"machine"
	"time"

	"github.com/itohio/goalt/pkg/bmp085"
	"github.com/itohio/goalt/pkg/bridge"
)

const (
	// Flash chip select
	PIN_FLASH_CS = machine.D3

	// Activity LED: toggled per bridge request, lit when the log is full
	PIN_LED = machine.LED

	// Receiver channel pulse input
	PIN_SERVO = machine.D2

	// Battery divider tap
	PIN_BATTERY_ADC = machine.A1

	// SPI configuration. The AT25DF041A runs up to 70 MHz in read-fast mode;
	// 4 MHz keeps long jumper wires happy.
	SPI_FREQUENCY = 4_000_000
	SPI_MODE      = 0

	// I2C configuration for the barometer (default SDA/SCL pins)
	I2C_FREQUENCY = 400 * machine.KHz

	// ADC configuration
	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12

	// Logging configuration
	// 20 soft oversamples at ultra low power take ~200 ms, well inside the
	// 500 ms log interval.
	LOG_INTERVAL         = 500 * time.Millisecond
	LOG_SOFT_OVERSAMPLE  = 20
	BAROMETER_OVERSAMPLE = bmp085.UltraLowPower
	BATTERY_CALIBRATION  = 1.0

	// Serial configuration
	// The largest line is a full write request: "W <addr> <2*MaxChunk hex>\n".
	// At 115200 baud (11,520 bytes/sec) a 256 byte chunk moves in ~50 ms.
	UART_BAUD_RATE = 115200
	LINE_BUFFER    = 2*bridge.MaxChunk + 32
)
