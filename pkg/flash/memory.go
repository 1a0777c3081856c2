package flash

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by Memory once its fault budget is spent.
var ErrInjected = errors.New("injected flash fault")

// Memory simulates a flash chip in RAM for tests and development.
//
// Programming only clears bits, like NOR flash: a write ANDs the new data into
// the existing content.
type Memory struct {
	mu   sync.RWMutex
	data []byte

	reads  int
	writes int
	erases int

	// failAfter counts device operations left before every call fails.
	// Negative disables fault injection.
	failAfter int
}

// NewMemory creates an erased in-memory device of the given size.
func NewMemory(size uint32) *Memory {
	m := &Memory{
		data:      make([]byte, size),
		failAfter: -1,
	}
	fill(m.data, Erased)
	return m
}

// Size returns the device capacity in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// ReadRange returns a copy of n bytes starting at addr.
func (m *Memory) ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := ContextError(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(); err != nil {
		return nil, err
	}
	if err := CheckRange(m.Size(), addr, n); err != nil {
		return nil, err
	}

	m.reads++
	out := make([]byte, n)
	copy(out, m.data[addr:])
	return out, nil
}

// WriteSequential programs data starting at addr.
func (m *Memory) WriteSequential(ctx context.Context, addr uint32, data []byte) error {
	if err := ContextError(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(); err != nil {
		return err
	}
	if err := CheckRange(m.Size(), addr, len(data)); err != nil {
		return err
	}

	m.writes++
	program(m.data[addr:], data)
	return nil
}

// EraseAll sets every byte to Erased.
func (m *Memory) EraseAll(ctx context.Context) error {
	if err := ContextError(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(); err != nil {
		return err
	}

	m.erases++
	fill(m.data, Erased)
	return nil
}

// Bytes returns a snapshot of the whole device.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Load replaces the device content with img, padding with Erased.
func (m *Memory) Load(img []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fill(m.data, Erased)
	copy(m.data, img)
}

// Counters returns the number of successful reads, writes and erases.
func (m *Memory) Counters() (reads, writes, erases int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads, m.writes, m.erases
}

// FailAfter makes every operation after the next n fail with ErrInjected.
// A negative n disables fault injection.
func (m *Memory) FailAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
}

func (m *Memory) fault() error {
	if m.failAfter < 0 {
		return nil
	}
	if m.failAfter == 0 {
		return ErrInjected
	}
	m.failAfter--
	return nil
}

// program ANDs src into dst.
func program(dst, src []byte) {
	for i, b := range src {
		dst[i] &= b
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
