package datastore

import (
	"context"
	"fmt"

	"github.com/itohio/goalt/pkg/record"
)

// Cursor walks the log from the first record up to the write cursor.
type Cursor struct {
	s   *Store
	pos uint32
	end uint32
}

// StartRead returns a cursor positioned at the start of the log. The end is
// fixed at the write cursor as of this call.
func (s *Store) StartRead() *Cursor {
	return &Cursor{s: s, end: s.WriteCursor()}
}

// HasMore reports whether Next has another entry to return.
func (c *Cursor) HasMore() bool {
	return c.pos < c.end
}

// Next returns the entry under the cursor and advances it.
func (c *Cursor) Next(ctx context.Context) (Entry, error) {
	if !c.HasMore() {
		return Entry{}, fmt.Errorf("read past write cursor at %d", c.pos)
	}

	e, err := c.s.readEntry(ctx, c.pos)
	if err != nil {
		return Entry{}, err
	}
	c.pos += record.Size
	return e, nil
}

// ReverseCursor walks the log from the newest record back to the first.
type ReverseCursor struct {
	s   *Store
	pos uint32 // one past the next entry to return
}

// StartReverseRead returns a cursor positioned at the newest record.
func (s *Store) StartReverseRead() *ReverseCursor {
	return &ReverseCursor{s: s, pos: s.WriteCursor()}
}

// HasMore reports whether Previous has another entry to return.
func (c *ReverseCursor) HasMore() bool {
	return c.pos >= record.Size
}

// Previous returns the entry before the cursor and moves back over it.
func (c *ReverseCursor) Previous(ctx context.Context) (Entry, error) {
	if !c.HasMore() {
		return Entry{}, fmt.Errorf("read before start of log")
	}

	e, err := c.s.readEntry(ctx, c.pos-record.Size)
	if err != nil {
		return Entry{}, err
	}
	c.pos -= record.Size
	return e, nil
}

// Session is one recording session read back from the log.
type Session struct {
	Index   int    // zero-based position in the log
	Start   uint32 // address of the first record
	Samples []record.Sample
	// Complete is false for a trailing session without an end marker.
	Complete bool
}

// Sessions reads the whole log and splits it at end-of-session markers.
// Records after the last marker form a final, incomplete session.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	var (
		out []Session
		cur = Session{}
	)

	c := s.StartRead()
	for c.HasMore() {
		e, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}

		if e.Blank {
			cur.Complete = true
			out = append(out, cur)
			cur = Session{Index: len(out), Start: e.Address + record.Size}
			continue
		}
		cur.Samples = append(cur.Samples, e.Sample)
	}

	if len(cur.Samples) > 0 {
		out = append(out, cur)
	}
	return out, nil
}
