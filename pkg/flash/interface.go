package flash

import (
	"context"
	"errors"
	"fmt"
)

// Erased is the value an un-programmed byte reads as.
const Erased byte = 0xFF

var (
	// ErrOutOfRange is returned for accesses outside the device.
	ErrOutOfRange = errors.New("address out of range")
	// ErrTimeout is returned when a device does not complete an operation
	// before the context deadline.
	ErrTimeout = errors.New("flash operation timed out")
)

// Device is a byte-addressable flash chip that can only be erased in bulk.
//
// Implementations block until an operation is complete. Once WriteSequential
// returns, the written bytes are durably readable. Writing over bytes that are
// not erased leaves undefined content.
type Device interface {
	Size() uint32
	ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error)
	WriteSequential(ctx context.Context, addr uint32, data []byte) error
	EraseAll(ctx context.Context) error
}

// Ensure Memory implements Device.
var _ Device = (*Memory)(nil)

// Ensure Image implements Device.
var _ Device = (*Image)(nil)

// CheckRange validates an access of n bytes at addr against a device of the
// given size.
func CheckRange(size, addr uint32, n int) error {
	if n < 0 || uint64(addr)+uint64(n) > uint64(size) {
		return fmt.Errorf("access %d bytes at %d (size %d): %w", n, addr, size, ErrOutOfRange)
	}
	return nil
}

// ContextError maps a finished context to ErrTimeout when its deadline
// passed. It returns nil while ctx is live.
func ContextError(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
