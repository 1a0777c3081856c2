package flash

import (
	"context"
	"sync"
)

// DefaultWindow is the read-ahead window used by NewReadAhead when none is
// given.
const DefaultWindow = 4096

// ReadAhead wraps a device and serves small sequential reads from one cached
// window. Writes and erases go straight through and update or drop the
// window.
type ReadAhead struct {
	dev    Device
	window int

	mu     sync.Mutex
	base   uint32
	cache  []byte
	hits   int
	misses int
}

// Ensure ReadAhead implements Device.
var _ Device = (*ReadAhead)(nil)

// NewReadAhead wraps dev with a read-ahead window of the given size.
func NewReadAhead(dev Device, window int) *ReadAhead {
	if window <= 0 {
		window = DefaultWindow
	}
	return &ReadAhead{dev: dev, window: window}
}

// Size returns the size of the wrapped device.
func (r *ReadAhead) Size() uint32 {
	return r.dev.Size()
}

// ReadRange serves the read from the window, refilling it from addr on a miss.
// Reads larger than the window bypass it.
func (r *ReadAhead) ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := CheckRange(r.dev.Size(), addr, n); err != nil {
		return nil, err
	}
	if n > r.window {
		return r.dev.ReadRange(ctx, addr, n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.covers(addr, n) {
		size := min(uint32(r.window), r.dev.Size()-addr)
		b, err := r.dev.ReadRange(ctx, addr, int(size))
		if err != nil {
			r.cache = nil
			return nil, err
		}
		r.base = addr
		r.cache = b
		r.misses++
	} else {
		r.hits++
	}

	out := make([]byte, n)
	copy(out, r.cache[addr-r.base:])
	return out, nil
}

// WriteSequential writes through and applies the same programming to the
// cached window.
func (r *ReadAhead) WriteSequential(ctx context.Context, addr uint32, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.dev.WriteSequential(ctx, addr, data); err != nil {
		r.cache = nil
		return err
	}

	// overlap of [addr, addr+len) with the window
	lo := max(addr, r.base)
	hi := min(uint64(addr)+uint64(len(data)), uint64(r.base)+uint64(len(r.cache)))
	if r.cache != nil && uint64(lo) < hi {
		program(r.cache[lo-r.base:hi-uint64(r.base)], data[lo-addr:hi-uint64(addr)])
	}
	return nil
}

// EraseAll erases the device and drops the window.
func (r *ReadAhead) EraseAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = nil
	return r.dev.EraseAll(ctx)
}

// Stats returns window hits and misses.
func (r *ReadAhead) Stats() (hits, misses int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}

// covers must be called with mu held.
func (r *ReadAhead) covers(addr uint32, n int) bool {
	if r.cache == nil || addr < r.base {
		return false
	}
	return uint64(addr)+uint64(n) <= uint64(r.base)+uint64(len(r.cache))
}
