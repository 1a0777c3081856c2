// Package datastore keeps an append-only log of fixed-width records on a flash
// device.
//
// The log has no header or index. Sessions ("files") are runs of records
// terminated by an end-of-session marker, which is a record that was never
// programmed and so reads as the erased pattern. Two blank records in a row
// mark the start of free space; Scan relies on that to rebuild the write
// cursor and the session count after a restart.
//
// The last two record slots of the device are never written so a full log
// still has room for a terminating marker.
package datastore

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/itohio/goalt/pkg/flash"
	"github.com/itohio/goalt/pkg/record"
)

// Store is the log on one flash device. It expects a single writer.
type Store struct {
	dev     flash.Device
	ceiling uint32

	mu       sync.RWMutex
	cursor   uint32 // next free address, a multiple of record.Size
	sessions uint32 // completed sessions
}

// Entry is one record read back from the log.
type Entry struct {
	Address uint32
	Sample  record.Sample
	// Blank marks an end-of-session marker. Sample is meaningless then.
	Blank bool
}

// New binds a store to dev. The store starts empty; call Scan to pick up
// existing content.
func New(dev flash.Device) *Store {
	slots := dev.Size() / record.Size
	var ceiling uint32
	if slots > 2 {
		ceiling = (slots - 2) * record.Size
	}

	return &Store{
		dev:     dev,
		ceiling: ceiling,
	}
}

// Ceiling returns the first address AddEntry will not write to.
func (s *Store) Ceiling() uint32 {
	return s.ceiling
}

// Capacity returns the number of records that fit below the ceiling.
func (s *Store) Capacity() uint32 {
	return s.ceiling / record.Size
}

// WriteCursor returns the next free address.
func (s *Store) WriteCursor() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// SessionCount returns the number of completed sessions.
func (s *Store) SessionCount() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions
}

// EntryCount returns the number of record slots in use, end-of-session
// markers included.
func (s *Store) EntryCount() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor / record.Size
}

// Full reports whether AddEntry would refuse another record.
func (s *Store) Full() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor >= s.ceiling
}

// AddEntry appends one record. It returns false without touching the device
// when the log is full.
func (s *Store) AddEntry(ctx context.Context, smp record.Sample) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= s.ceiling {
		return false, nil
	}

	b, err := record.Encode(smp)
	if err != nil {
		return false, err
	}
	if err := s.dev.WriteSequential(ctx, s.cursor, b[:]); err != nil {
		return false, fmt.Errorf("failed to write entry at %d: %w", s.cursor, err)
	}

	s.cursor += record.Size
	return true, nil
}

// AddFileEndMarker ends the current session. Nothing is written: the slot at
// the cursor is still erased and already reads as a marker.
//
// One marker fits past the ceiling. It returns false when even that slot is
// used up.
func (s *Store) AddFileEndMarker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor > s.ceiling {
		return false
	}

	s.cursor += record.Size
	s.sessions++
	return true
}

// Erase wipes the device and empties the log.
func (s *Store) Erase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dev.EraseAll(ctx); err != nil {
		return fmt.Errorf("failed to erase flash: %w", err)
	}

	s.cursor = 0
	s.sessions = 0
	return nil
}

// Scan rebuilds the write cursor and the session count from the device
// content. It must run before anything else when the device may hold data.
//
// Every blank record counts as a session end. Two blanks in a row mark the
// start of free space; the cursor lands on the second one and the count drops
// by one for it. A log holding a single leading blank is empty.
//
// When no double blank is found below the ceiling, the log is full and the
// cursor is set to the ceiling. The count is left uncorrected in that case,
// so a trailing session may be counted one off.
//
// On a device error the previous state is kept.
func (s *Store) Scan(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sessions      uint32
		previousBlank bool
	)

	for addr := uint32(0); addr < s.ceiling; addr += record.Size {
		b, err := s.dev.ReadRange(ctx, addr, record.Size)
		if err != nil {
			return fmt.Errorf("failed to scan entry at %d: %w", addr, err)
		}

		if !record.IsBlank(b) {
			previousBlank = false
			continue
		}

		sessions++
		if !previousBlank {
			previousBlank = true
			continue
		}

		s.cursor = addr
		s.sessions = sessions - 1
		if s.cursor == record.Size {
			s.cursor = 0
			s.sessions = 0
		}
		return nil
	}

	s.cursor = s.ceiling
	s.sessions = sessions
	log.Printf("Flash log full at %d bytes, session count %d may be off by one", s.ceiling, sessions)
	return nil
}

// readEntry reads the record at addr.
func (s *Store) readEntry(ctx context.Context, addr uint32) (Entry, error) {
	b, err := s.dev.ReadRange(ctx, addr, record.Size)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read entry at %d: %w", addr, err)
	}

	e := Entry{Address: addr, Blank: record.IsBlank(b)}
	if e.Blank {
		return e, nil
	}

	e.Sample, err = record.Decode(b)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}
