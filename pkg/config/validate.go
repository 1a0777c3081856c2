package config

import (
	"fmt"
)

// minFlashSize leaves room for at least one record plus the two reserved
// trailing slots.
const minFlashSize = 3 * 5

// Validate checks configuration correctness. It does not modify cfg.
func Validate(cfg *Config) error {
	switch cfg.Flash.Device {
	case DeviceMemory, DeviceImage:
		if cfg.Flash.Size < minFlashSize {
			return fmt.Errorf("flash.size %d is too small (min %d)", cfg.Flash.Size, minFlashSize)
		}
		if cfg.Flash.Device == DeviceImage && cfg.Flash.Image == "" {
			return fmt.Errorf("flash.image is required for the image device")
		}
	case DeviceSerial:
		if cfg.Serial.Port == "" {
			return fmt.Errorf("serial.port is required for the serial device")
		}
		if cfg.Serial.BaudRate <= 0 {
			return fmt.Errorf("serial.baud_rate must be > 0")
		}
	default:
		return fmt.Errorf("flash.device %q is not one of %s, %s, %s",
			cfg.Flash.Device, DeviceMemory, DeviceImage, DeviceSerial)
	}

	if cfg.Flash.Timeout < 0 {
		return fmt.Errorf("flash.timeout must not be negative")
	}

	if cfg.Logging.Interval <= 0 {
		return fmt.Errorf("logging.interval must be > 0")
	}
	if cfg.Logging.Oversample < 1 {
		return fmt.Errorf("logging.oversample must be >= 1")
	}

	if cfg.Flight.HeightUnits <= 0 {
		return fmt.Errorf("flight.height_units must be > 0")
	}
	if cfg.Flight.BaseSamples < 1 {
		return fmt.Errorf("flight.base_samples must be >= 1")
	}
	if cfg.Flight.LaunchSeekbackSamples < 0 {
		return fmt.Errorf("flight.launch_seekback_samples must not be negative")
	}

	return nil
}
