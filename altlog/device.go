package main

import (
	"context"
	"fmt"
	"log"

	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/flash"
	"github.com/itohio/goalt/pkg/flash/serialflash"
)

// openDevice opens the flash device selected in cfg. The returned closer
// releases it.
func openDevice(ctx context.Context, cfg *config.Config) (flash.Device, func() error, error) {
	switch cfg.Flash.Device {
	case config.DeviceMemory:
		log.Printf("Using in-memory flash (%d bytes); content is lost on exit", cfg.Flash.Size)
		return flash.NewMemory(cfg.Flash.Size), func() error { return nil }, nil

	case config.DeviceImage:
		img, err := flash.OpenImage(cfg.Flash.Image, cfg.Flash.Size)
		if err != nil {
			return nil, nil, err
		}
		return img, img.Close, nil

	case config.DeviceSerial:
		dev := serialflash.New(cfg.Serial.Port, cfg.Serial.BaudRate, 0)
		if err := dev.Connect(ctx); err != nil {
			return nil, nil, err
		}
		log.Printf("Connected to flash bridge on %s (%d bytes)", cfg.Serial.Port, dev.Size())
		// every record read would be a round trip otherwise
		return flash.NewReadAhead(dev, flash.DefaultWindow), dev.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown flash device %q", cfg.Flash.Device)
	}
}
