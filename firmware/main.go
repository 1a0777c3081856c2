//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/goalt/pkg/at25df"
	"github.com/itohio/goalt/pkg/bmp085"
	"github.com/itohio/goalt/pkg/bridge"
	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/datastore"
	"github.com/itohio/goalt/pkg/recorder"
	"github.com/itohio/goalt/pkg/sensor"
)

var (
	uart = machine.UART0
	spi  = machine.SPI0
	i2c  = machine.I2C0

	chip  *at25df.Device
	store *datastore.Store
	rec   *recorder.Recorder
	led   bool

	// Logging runs until the first bridge request
	stopLogging context.CancelFunc
	loggingDone chan struct{}

	// Serial buffer for reading lines
	serialBuffer [LINE_BUFFER]byte
	serialPos    int
	overflow     bool
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_FLASH_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_FLASH_CS.High()

	if err := spi.Configure(machine.SPIConfig{
		Frequency: SPI_FREQUENCY,
		Mode:      SPI_MODE,
	}); err != nil {
		println("spi configure failed:", err.Error())
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	chip = at25df.New(spi, PIN_FLASH_CS)
	if err := chip.Configure(); err != nil {
		println("flash configure failed:", err.Error())
	}

	// Recover the write cursor and session count left by the last run
	store = datastore.New(chip)
	if err := store.Scan(context.Background()); err != nil {
		println("flash scan failed:", err.Error())
	} else if sensors, err := configureSensors(); err != nil {
		println("sensor configure failed:", err.Error())
	} else {
		rec = recorder.New(store, sensors, config.LoggingConfig{
			Interval:   LOG_INTERVAL,
			Oversample: LOG_SOFT_OVERSAMPLE,
		})
		rec.OnFull(func() { PIN_LED.High() })
		startLogging()
	}

	// Main loop
	for {
		processSerial()

		// Small delay to prevent tight loop
		time.Sleep(100 * time.Microsecond)
	}
}

func configureSensors() (sensor.Set, error) {
	if err := i2c.Configure(machine.I2CConfig{Frequency: I2C_FREQUENCY}); err != nil {
		return sensor.Set{}, err
	}
	baro := bmp085.New(i2c)
	baro.SetOversampling(BAROMETER_OVERSAMPLE)
	if err := baro.Configure(); err != nil {
		return sensor.Set{}, err
	}

	PIN_BATTERY_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc := machine.ADC{Pin: PIN_BATTERY_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	PIN_SERVO.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	return sensor.Set{
		Barometer: baro,
		Battery:   sensor.NewDividerBattery(adc, sensor.DefaultDividerRatio, sensor.DefaultADCReference, BATTERY_CALIBRATION),
		Servo:     sensor.NewPulseServo(PIN_SERVO, 0),
	}, nil
}

func startLogging() {
	ctx, cancel := context.WithCancel(context.Background())
	stopLogging = cancel
	loggingDone = make(chan struct{})

	go func() {
		defer close(loggingDone)
		if err := rec.Run(ctx); err != nil {
			println("logging stopped:", err.Error())
		}
	}()
}

// enterDownloadMode ends the open session so the host sees a terminated log
// and owns the chip from now on.
func enterDownloadMode() {
	if stopLogging == nil {
		return
	}
	stopLogging()
	<-loggingDone
	stopLogging = nil
}

func processSerial() {
	// Read available bytes from serial
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		// Check for newline (end of line)
		if data == '\n' || data == '\r' {
			if overflow {
				reply(bridge.Response{Kind: bridge.KindError, Msg: "line too long"}.Format())
			} else if serialPos > 0 {
				handleLine(string(serialBuffer[:serialPos]))
			}
			// Reset buffer regardless of length
			serialPos = 0
			overflow = false
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Drop the rest of the line and report it on newline
			overflow = true
		}
	}
}

func handleLine(line string) {
	enterDownloadMode()

	led = !led
	if led {
		PIN_LED.High()
	} else {
		PIN_LED.Low()
	}

	// The chip driver bounds every busy wait on its own
	reply(bridge.Handle(context.Background(), line, chip))
}

func reply(resp string) {
	uart.Write([]byte(resp))
}
