// Package serialflash reaches a flash chip through the bridge firmware over a
// serial port. It is host-only; the device side lives in pkg/bridge.
package serialflash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/goalt/pkg/bridge"
	"github.com/itohio/goalt/pkg/flash"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the UART speed of the bridge firmware.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds a single bridge transaction.
	DefaultTimeout = 5 * time.Second

	// maxLine bounds one response line: kind, space, hex payload, newline.
	maxLine = 2*bridge.MaxChunk + 16
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// readTimeouter is implemented by serial.Port.
type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// Ensure Serial implements flash.Device.
var _ flash.Device = (*Serial)(nil)

// Serial is a flash device reached through the bridge firmware on a serial
// port.
type Serial struct {
	port     string
	baudRate int
	timeout  time.Duration

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	pending   []byte
	size      uint32
	connected bool
}

// New creates a bridge client for the given port. Zero values select
// the defaults.
func New(port string, baudRate int, timeout time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		timeout:  timeout,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and asks the bridge for the device size.
func (d *Serial) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	d.mu.Unlock()

	port, err := serial.Open(d.port, &serial.Mode{
		BaudRate: d.baudRate,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	return d.attach(ctx, port)
}

// attach binds an open connection and queries the device size.
func (d *Serial) attach(ctx context.Context, conn io.ReadWriteCloser) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conn = conn
	d.pending = d.pending[:0]
	d.connected = true

	resp, err := d.roundTrip(ctx, bridge.Request{Op: bridge.OpSize}, bridge.KindSize)
	if err != nil {
		d.closeLocked()
		return fmt.Errorf("failed to query flash size: %w", err)
	}
	d.size = resp.Size

	return nil
}

// Close closes the serial port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Serial) closeLocked() error {
	if !d.connected {
		return nil
	}
	d.connected = false

	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected returns whether the bridge is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Size returns the capacity reported by the bridge on Connect.
func (d *Serial) Size() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// ReadRange reads n bytes at addr in bridge-sized chunks.
func (d *Serial) ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := flash.CheckRange(d.size, addr, n); err != nil {
		return nil, err
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := min(n-len(out), bridge.MaxChunk)
		resp, err := d.roundTrip(ctx, bridge.Request{
			Op:   bridge.OpRead,
			Addr: addr + uint32(len(out)),
			N:    chunk,
		}, bridge.KindData)
		if err != nil {
			return nil, fmt.Errorf("failed to read %d bytes at %d: %w", chunk, addr+uint32(len(out)), err)
		}
		if len(resp.Data) != chunk {
			return nil, fmt.Errorf("short read at %d: got %d bytes, want %d", addr+uint32(len(out)), len(resp.Data), chunk)
		}
		out = append(out, resp.Data...)
	}

	return out, nil
}

// WriteSequential programs data at addr in bridge-sized chunks.
func (d *Serial) WriteSequential(ctx context.Context, addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := flash.CheckRange(d.size, addr, len(data)); err != nil {
		return err
	}

	for off := 0; off < len(data); off += bridge.MaxChunk {
		end := min(off+bridge.MaxChunk, len(data))
		_, err := d.roundTrip(ctx, bridge.Request{
			Op:   bridge.OpWrite,
			Addr: addr + uint32(off),
			Data: data[off:end],
		}, bridge.KindOK)
		if err != nil {
			return fmt.Errorf("failed to write %d bytes at %d: %w", end-off, addr+uint32(off), err)
		}
	}

	return nil
}

// EraseAll erases the whole chip. A chip erase takes seconds; the context
// deadline must allow for it.
func (d *Serial) EraseAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.roundTrip(ctx, bridge.Request{Op: bridge.OpErase}, bridge.KindOK); err != nil {
		return fmt.Errorf("failed to erase flash: %w", err)
	}
	return nil
}

// roundTrip sends req and waits for a response of the wanted kind.
// Callers hold d.mu.
func (d *Serial) roundTrip(ctx context.Context, req bridge.Request, want bridge.Kind) (bridge.Response, error) {
	if !d.connected {
		return bridge.Response{}, fmt.Errorf("not connected")
	}
	if err := flash.ContextError(ctx); err != nil {
		return bridge.Response{}, err
	}

	if _, err := io.WriteString(d.conn, req.Format()); err != nil {
		return bridge.Response{}, fmt.Errorf("failed to send request: %w", err)
	}

	line, err := d.readLine(ctx)
	if err != nil {
		return bridge.Response{}, err
	}

	resp, err := bridge.ParseResponse(line)
	if err != nil {
		return bridge.Response{}, err
	}
	if err := resp.Err(); err != nil {
		return bridge.Response{}, err
	}
	if resp.Kind != want {
		return bridge.Response{}, fmt.Errorf("unexpected response %c, want %c", resp.Kind, want)
	}

	return resp, nil
}

// readLine reads up to the next newline. It gives up with ErrTimeout when the
// context deadline or the transaction timeout passes first.
func (d *Serial) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(d.pending, '\n'); i >= 0 {
			line := string(d.pending[:i])
			d.pending = append(d.pending[:0], d.pending[i+1:]...)
			return line, nil
		}
		if len(d.pending) > maxLine {
			d.pending = d.pending[:0]
			return "", fmt.Errorf("response line exceeds %d bytes", maxLine)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("waiting for bridge response: %w", flash.ErrTimeout)
		}
		if err := flash.ContextError(ctx); err != nil {
			return "", err
		}
		if rt, ok := d.conn.(readTimeouter); ok {
			if err := rt.SetReadTimeout(remaining); err != nil {
				return "", fmt.Errorf("failed to set read timeout: %w", err)
			}
		}

		n, err := d.conn.Read(buf)
		if n > 0 {
			d.pending = append(d.pending, buf[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
	}
}
