package main

import (
	"context"
	"fmt"
	"io"

	"github.com/itohio/goalt/pkg/datastore"
	"github.com/itohio/goalt/pkg/flash"
	"github.com/itohio/goalt/pkg/record"
)

// selftestSessions are the session lengths written by selftest.
var selftestSessions = []int{3, 1, 7}

// selftest erases dev, writes a few sessions, and checks that a fresh store
// recovers them. The device is left erased.
func selftest(ctx context.Context, dev flash.Device, out io.Writer) error {
	store := datastore.New(dev)
	if store.Capacity() < uint32(len(selftestSessions)+sum(selftestSessions)) {
		return fmt.Errorf("device of %d bytes is too small", dev.Size())
	}

	if err := store.Erase(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "erase: ok")

	var written [][]record.Sample
	n := 0
	for _, size := range selftestSessions {
		var session []record.Sample
		for range size {
			smp := record.Quantize(record.Sample{
				Pressure:    int32(100000 + 37*n),
				Temperature: float32(n%60) - 10,
				Battery:     3.3 + float32(n%20)*0.05,
				Servo:       uint16(1000 + 8*n),
			})
			ok, err := store.AddEntry(ctx, smp)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("store full after %d records", n)
			}
			session = append(session, smp)
			n++
		}
		store.AddFileEndMarker()
		written = append(written, session)
	}
	fmt.Fprintf(out, "write: %d records in %d sessions\n", n, len(written))

	recovered := datastore.New(dev)
	if err := recovered.Scan(ctx); err != nil {
		return err
	}
	if recovered.WriteCursor() != store.WriteCursor() {
		return fmt.Errorf("scan: write cursor %d, want %d", recovered.WriteCursor(), store.WriteCursor())
	}
	if recovered.SessionCount() != store.SessionCount() {
		return fmt.Errorf("scan: %d sessions, want %d", recovered.SessionCount(), store.SessionCount())
	}
	fmt.Fprintln(out, "scan: ok")

	sessions, err := recovered.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) != len(written) {
		return fmt.Errorf("read: %d sessions, want %d", len(sessions), len(written))
	}
	for i, s := range sessions {
		if len(s.Samples) != len(written[i]) {
			return fmt.Errorf("read: session %d has %d records, want %d", i, len(s.Samples), len(written[i]))
		}
		for j, smp := range s.Samples {
			if smp != written[i][j] {
				return fmt.Errorf("read: session %d record %d is %s, want %s", i, j, smp, written[i][j])
			}
		}
	}
	fmt.Fprintln(out, "read: ok")

	// the reverse walk sees the same entries
	entries := 0
	rc := recovered.StartReverseRead()
	for rc.HasMore() {
		if _, err := rc.Previous(ctx); err != nil {
			return err
		}
		entries++
	}
	if uint32(entries) != recovered.EntryCount() {
		return fmt.Errorf("reverse read: %d entries, want %d", entries, recovered.EntryCount())
	}
	fmt.Fprintln(out, "reverse read: ok")

	if err := recovered.Erase(ctx); err != nil {
		return err
	}
	return nil
}

func sum(v []int) int {
	total := 0
	for _, x := range v {
		total += x
	}
	return total
}
