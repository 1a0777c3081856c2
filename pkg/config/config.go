package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Flash device kinds.
const (
	DeviceMemory = "memory"
	DeviceImage  = "image"
	DeviceSerial = "serial"
)

// Config represents the application configuration.
type Config struct {
	Flash   FlashConfig   `yaml:"flash"`
	Serial  SerialConfig  `yaml:"serial"`
	Logging LoggingConfig `yaml:"logging"`
	Flight  FlightConfig  `yaml:"flight"`
	Mock    MockConfig    `yaml:"mock"`
}

// FlashConfig selects and sizes the flash device.
type FlashConfig struct {
	Device  string        `yaml:"device"`  // memory, image or serial
	Image   string        `yaml:"image"`   // image file path for the image device
	Size    uint32        `yaml:"size"`    // capacity in bytes (memory and image devices)
	Timeout time.Duration `yaml:"timeout"` // bound on a single store operation
}

// SerialConfig contains serial port configuration for the bridge firmware.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// LoggingConfig controls the recorder loop.
type LoggingConfig struct {
	Interval   time.Duration `yaml:"interval"`   // time between logged samples
	Oversample int           `yaml:"oversample"` // barometer readings averaged per sample
}

// FlightConfig contains altitude and launch detector parameters.
type FlightConfig struct {
	HeightUnits           float64       `yaml:"height_units"`            // 3.281 for feet, 1.0 for metres
	BaseSamples           int           `yaml:"base_samples"`            // records averaged for the ground pressure
	LaunchClimbThreshold  float64       `yaml:"launch_climb_threshold"`  // m/s
	LaunchClimbTime       time.Duration `yaml:"launch_climb_time"`       // how long the climb must last
	LaunchSeekbackSamples int           `yaml:"launch_seekback_samples"` // samples searched back for the launch point
}

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	GroundPressure    int32   `yaml:"ground_pressure"`    // Pa
	GroundTemperature int32   `yaml:"ground_temperature"` // tenths of °C
	Battery           float32 `yaml:"battery"`            // V
	Servo             uint16  `yaml:"servo"`              // µs, 0 for no receiver
	ClimbRate         float64 `yaml:"climb_rate"`         // m/s
	MaxHeight         float64 `yaml:"max_height"`         // m
	SinkRate          float64 `yaml:"sink_rate"`          // m/s
	NoiseLevel        float64 `yaml:"noise_level"`        // Pa
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Flash: FlashConfig{
			Device:  DeviceImage,
			Image:   "flash.img",
			Size:    524288, // AT25DF041A
			Timeout: 30 * time.Second,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Logging: LoggingConfig{
			Interval:   500 * time.Millisecond,
			Oversample: 20,
		},
		Flight: FlightConfig{
			HeightUnits:           3.281,
			BaseSamples:           4,
			LaunchClimbThreshold:  3.0,
			LaunchClimbTime:       1500 * time.Millisecond,
			LaunchSeekbackSamples: 20,
		},
		Mock: MockConfig{
			GroundPressure:    101325,
			GroundTemperature: 200,
			Battery:           4.8,
			Servo:             1500,
			ClimbRate:         8.0,
			MaxHeight:         150.0,
			SinkRate:          0.7,
			NoiseLevel:        4.0,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Flash.Device == "" {
		c.Flash.Device = def.Flash.Device
	}
	if c.Flash.Image == "" {
		c.Flash.Image = def.Flash.Image
	}
	if c.Flash.Size == 0 {
		c.Flash.Size = def.Flash.Size
	}
	if c.Flash.Timeout == 0 {
		c.Flash.Timeout = def.Flash.Timeout
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Logging.Interval == 0 {
		c.Logging.Interval = def.Logging.Interval
	}
	if c.Logging.Oversample == 0 {
		c.Logging.Oversample = def.Logging.Oversample
	}

	if c.Flight.HeightUnits == 0 {
		c.Flight.HeightUnits = def.Flight.HeightUnits
	}
	if c.Flight.BaseSamples == 0 {
		c.Flight.BaseSamples = def.Flight.BaseSamples
	}
	if c.Flight.LaunchClimbThreshold == 0 {
		c.Flight.LaunchClimbThreshold = def.Flight.LaunchClimbThreshold
	}
	if c.Flight.LaunchClimbTime == 0 {
		c.Flight.LaunchClimbTime = def.Flight.LaunchClimbTime
	}
	if c.Flight.LaunchSeekbackSamples == 0 {
		c.Flight.LaunchSeekbackSamples = def.Flight.LaunchSeekbackSamples
	}

	if c.Mock.GroundPressure == 0 {
		c.Mock.GroundPressure = def.Mock.GroundPressure
	}
	if c.Mock.Battery == 0 {
		c.Mock.Battery = def.Mock.Battery
	}
	if c.Mock.ClimbRate == 0 {
		c.Mock.ClimbRate = def.Mock.ClimbRate
	}
	if c.Mock.MaxHeight == 0 {
		c.Mock.MaxHeight = def.Mock.MaxHeight
	}
	if c.Mock.SinkRate == 0 {
		c.Mock.SinkRate = def.Mock.SinkRate
	}
}
