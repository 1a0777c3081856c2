// Package at25df drives an Adesto/Atmel AT25DF serial flash over SPI.
//
// The chip is programmed byte by byte in sequential program mode and erased
// as a whole. Every busy wait is bounded by the driver timeout and the caller's
// context.
package at25df

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/goalt/pkg/flash"
)

const (
	// Size is the capacity of the AT25DF041A in bytes.
	Size = 524288

	// DefaultTimeout bounds one busy wait. A full chip erase is the slowest
	// operation, at several seconds.
	DefaultTimeout = 15 * time.Second
)

const (
	cmdReadArrayFast     = 0x0B
	cmdSequentialProgram = 0xAD
	cmdWriteEnable       = 0x06
	cmdWriteDisable      = 0x04
	cmdReadStatus        = 0x05
	cmdWriteStatus       = 0x01
	cmdChipErase         = 0xC7
	cmdManufacturerID    = 0x9F

	statusBusy byte = 0x01
	dummy      byte = 0x00
)

var _ flash.Device = (*Device)(nil)

// Bus transfers bytes over SPI. w is clocked out while r is filled; either
// may be nil.
type Bus interface {
	Tx(w, r []byte) error
}

// Pin is the chip select line.
type Pin interface {
	High()
	Low()
}

// Device is an AT25DF flash chip.
type Device struct {
	bus     Bus
	cs      Pin
	size    uint32
	timeout time.Duration
	// poll is the pause between status reads.
	poll time.Duration
}

// New creates a driver for the chip on bus selected by cs.
func New(bus Bus, cs Pin) *Device {
	return &Device{
		bus:     bus,
		cs:      cs,
		size:    Size,
		timeout: DefaultTimeout,
	}
}

// SetTimeout changes the busy wait bound.
func (d *Device) SetTimeout(t time.Duration) {
	d.timeout = t
}

// Configure deselects the chip and clears the global sector protection.
func (d *Device) Configure() error {
	d.cs.High()
	return d.writeEnableAndUnprotect()
}

// Size returns the capacity in bytes.
func (d *Device) Size() uint32 {
	return d.size
}

// ManufacturerID returns the JEDEC manufacturer and device id bytes.
func (d *Device) ManufacturerID(ctx context.Context) ([4]byte, error) {
	var id [4]byte
	if err := flash.ContextError(ctx); err != nil {
		return id, err
	}
	err := d.transfer([]byte{cmdManufacturerID}, id[:])
	return id, err
}

// ReadRange reads n bytes starting at addr.
func (d *Device) ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := flash.CheckRange(d.size, addr, n); err != nil {
		return nil, err
	}
	if err := flash.ContextError(ctx); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	hdr := []byte{cmdReadArrayFast, byte(addr >> 16), byte(addr >> 8), byte(addr), dummy}
	if err := d.transfer(hdr, buf); err != nil {
		return nil, fmt.Errorf("read %d bytes at %d: %w", n, addr, err)
	}
	return buf, nil
}

// WriteSequential programs data starting at addr, one byte per command,
// waiting for the chip after every byte.
func (d *Device) WriteSequential(ctx context.Context, addr uint32, data []byte) error {
	if err := flash.CheckRange(d.size, addr, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := flash.ContextError(ctx); err != nil {
		return err
	}
	if err := d.writeEnableAndUnprotect(); err != nil {
		return err
	}

	// the first byte carries the start address, the rest continue from it
	first := []byte{cmdSequentialProgram, byte(addr >> 16), byte(addr >> 8), byte(addr), data[0]}
	if err := d.transfer(first, nil); err != nil {
		return fmt.Errorf("program at %d: %w", addr, err)
	}
	if err := d.waitUntilDone(ctx); err != nil {
		return err
	}

	for i := 1; i < len(data); i++ {
		if err := d.transfer([]byte{cmdSequentialProgram, data[i]}, nil); err != nil {
			return fmt.Errorf("program at %d: %w", addr+uint32(i), err)
		}
		if err := d.waitUntilDone(ctx); err != nil {
			return err
		}
	}

	return d.command(cmdWriteDisable)
}

// EraseAll erases the whole chip.
func (d *Device) EraseAll(ctx context.Context) error {
	if err := flash.ContextError(ctx); err != nil {
		return err
	}
	if err := d.writeEnableAndUnprotect(); err != nil {
		return err
	}
	if err := d.command(cmdChipErase); err != nil {
		return fmt.Errorf("chip erase: %w", err)
	}
	return d.waitUntilDone(ctx)
}

// Status reads the status register.
func (d *Device) Status() (byte, error) {
	var st [1]byte
	err := d.transfer([]byte{cmdReadStatus}, st[:])
	return st[0], err
}

func (d *Device) writeEnableAndUnprotect() error {
	if err := d.transfer([]byte{cmdWriteStatus, 0x00}, nil); err != nil {
		return fmt.Errorf("unprotect: %w", err)
	}
	if err := d.command(cmdWriteEnable); err != nil {
		return fmt.Errorf("write enable: %w", err)
	}
	return nil
}

// waitUntilDone polls the status register until the chip is idle.
func (d *Device) waitUntilDone(ctx context.Context) error {
	deadline := time.Now().Add(d.timeout)
	for {
		st, err := d.Status()
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		if st&statusBusy == 0 {
			return nil
		}

		if err := flash.ContextError(ctx); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chip busy after %v: %w", d.timeout, flash.ErrTimeout)
		}
		if d.poll > 0 {
			time.Sleep(d.poll)
		}
	}
}

func (d *Device) command(cmd byte) error {
	return d.transfer([]byte{cmd}, nil)
}

// transfer runs one chip-select framed transaction: w is sent, then r is
// filled by clocking out dummy bytes.
func (d *Device) transfer(w, r []byte) error {
	d.cs.Low()
	defer d.cs.High()

	if err := d.bus.Tx(w, nil); err != nil {
		return err
	}
	if len(r) > 0 {
		return d.bus.Tx(nil, r)
	}
	return nil
}
