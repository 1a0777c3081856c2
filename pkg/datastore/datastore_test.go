package datastore

import (
	"context"
	"testing"

	"github.com/itohio/goalt/pkg/flash"
	"github.com/itohio/goalt/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSize gives 20 record slots and a ceiling at 90.
const testSize = 100

func testSample(i int) record.Sample {
	return record.Quantize(record.Sample{
		Pressure:    int32(95000 + 10*i),
		Temperature: float32(100 + 5*(i%40)),
		Battery:     3.7 + float32(i%10)*0.05,
		Servo:       uint16(1000 + 8*(i%64)),
	})
}

func newStore(t *testing.T, size uint32) (*Store, *flash.Memory) {
	t.Helper()
	mem := flash.NewMemory(size)
	return New(mem), mem
}

// writeSessions appends one session per size, each ended by a marker.
func writeSessions(t *testing.T, s *Store, sizes ...int) []record.Sample {
	t.Helper()
	ctx := context.Background()

	var written []record.Sample
	n := 0
	for _, size := range sizes {
		for range size {
			smp := testSample(n)
			ok, err := s.AddEntry(ctx, smp)
			require.NoError(t, err)
			require.True(t, ok)
			written = append(written, smp)
			n++
		}
		require.True(t, s.AddFileEndMarker())
	}
	return written
}

func TestNew_Ceiling(t *testing.T) {
	tests := []struct {
		name    string
		size    uint32
		ceiling uint32
	}{
		{name: "aligned", size: 100, ceiling: 90},
		{name: "unaligned", size: 103, ceiling: 90},
		{name: "at25df", size: 524288, ceiling: 524275},
		{name: "tiny", size: 10, ceiling: 0},
		{name: "smaller than a record", size: 3, ceiling: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t, tt.size)
			assert.Equal(t, tt.ceiling, s.Ceiling())
			assert.Zero(t, tt.ceiling%record.Size)
			assert.Equal(t, tt.ceiling/record.Size, s.Capacity())
		})
	}
}

func TestScan_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, testSize)

	require.NoError(t, s.Erase(ctx))
	ok, err := s.AddEntry(ctx, record.Sample{Pressure: 101325, Temperature: 200, Battery: 4.2, Servo: record.NoServo})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, s.AddFileEndMarker())

	require.NoError(t, s.Scan(ctx))
	assert.Equal(t, uint32(1), s.SessionCount())
	assert.Equal(t, uint32(2), s.EntryCount())
}

func TestScan_EmptyDevice(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, testSize)

	require.NoError(t, s.Scan(ctx))
	assert.Equal(t, uint32(0), s.SessionCount())
	assert.Equal(t, uint32(0), s.WriteCursor())
	assert.Equal(t, uint32(0), s.EntryCount())
}

func TestScan_RecoversSessions(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
	}{
		{name: "one session", sizes: []int{1}},
		{name: "two sessions", sizes: []int{3, 4}},
		{name: "three sessions", sizes: []int{1, 1, 1}},
		{name: "uneven sessions", sizes: []int{7, 2, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, mem := newStore(t, testSize)
			writeSessions(t, s, tt.sizes...)

			wantEntries := uint32(len(tt.sizes))
			for _, n := range tt.sizes {
				wantEntries += uint32(n)
			}
			assert.Equal(t, wantEntries, s.EntryCount())

			// a fresh store on the same chip, as after a power cycle
			restarted := New(mem)
			require.NoError(t, restarted.Scan(ctx))
			assert.Equal(t, uint32(len(tt.sizes)), restarted.SessionCount())
			assert.Equal(t, wantEntries, restarted.EntryCount())
			assert.Equal(t, s.WriteCursor(), restarted.WriteCursor())
		})
	}
}

func TestScan_ContinueAfterRestart(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 2)

	restarted := New(mem)
	require.NoError(t, restarted.Scan(ctx))
	writeSessions(t, restarted, 3)

	again := New(mem)
	require.NoError(t, again.Scan(ctx))
	assert.Equal(t, uint32(2), again.SessionCount())
	assert.Equal(t, uint32(2+1+3+1), again.EntryCount())

	sessions, err := again.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Len(t, sessions[0].Samples, 2)
	assert.Len(t, sessions[1].Samples, 3)
}

func TestScan_ClosesInterruptedSession(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 3)

	// power lost in the middle of the second session
	for i := range 2 {
		ok, err := s.AddEntry(ctx, testSample(100+i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, uint32(1), s.SessionCount())

	restarted := New(mem)
	require.NoError(t, restarted.Scan(ctx))

	// the erased slot after the last record now reads as its marker
	assert.Equal(t, uint32(2), restarted.SessionCount())
	assert.Equal(t, uint32(3+1+2+1), restarted.EntryCount())
}

func TestScan_EmptySessionEndsLog(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 2)
	require.True(t, s.AddFileEndMarker()) // a session with no records
	writeSessions(t, s, 1)

	restarted := New(mem)
	require.NoError(t, restarted.Scan(ctx))

	// two markers in a row look like free space
	assert.Equal(t, uint32(1), restarted.SessionCount())
	assert.Equal(t, uint32(2+1), restarted.EntryCount())
}

func TestScan_IgnoresStaleState(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, testSize)
	writeSessions(t, s, 4, 4)

	require.NoError(t, s.Erase(ctx))
	assert.Equal(t, uint32(0), s.SessionCount())
	assert.Equal(t, uint32(0), s.WriteCursor())

	require.NoError(t, s.Scan(ctx))
	assert.Equal(t, uint32(0), s.SessionCount())
	assert.Equal(t, uint32(0), s.WriteCursor())
}

func TestAddEntry_FullDevice(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)

	n := 0
	for {
		ok, err := s.AddEntry(ctx, testSample(n))
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}

	assert.Equal(t, int(s.Capacity()), n)
	assert.Equal(t, s.Ceiling(), s.WriteCursor())
	assert.True(t, s.Full())

	// a refused append has no side effect
	_, writes, _ := mem.Counters()
	ok, err := s.AddEntry(ctx, testSample(0))
	require.NoError(t, err)
	assert.False(t, ok)
	_, writesAfter, _ := mem.Counters()
	assert.Equal(t, writes, writesAfter)
	assert.Equal(t, s.Ceiling(), s.WriteCursor())

	restarted := New(mem)
	require.NoError(t, restarted.Scan(ctx))
	assert.Equal(t, s.Ceiling(), restarted.WriteCursor())
	assert.Equal(t, uint32(0), restarted.SessionCount())
	assert.True(t, restarted.Full())
}

func TestScan_FullDeviceCountsUncorrected(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 3)

	for {
		ok, err := s.AddEntry(ctx, testSample(7))
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	// the reserved slack holds exactly one terminating marker
	require.True(t, s.AddFileEndMarker())
	assert.False(t, s.AddFileEndMarker())
	assert.Equal(t, uint32(2), s.SessionCount())

	restarted := New(mem)
	require.NoError(t, restarted.Scan(ctx))
	assert.Equal(t, s.Ceiling(), restarted.WriteCursor())
	// the marker past the ceiling is never scanned: one session short
	assert.Equal(t, uint32(1), restarted.SessionCount())
}

func TestAddEntry_ReservedPattern(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, testSize)

	blank := record.Raw{Pressure: -1, Temperature: 255, Battery: 255, Servo: 255}.Sample()
	ok, err := s.AddEntry(ctx, blank)
	assert.ErrorIs(t, err, record.ErrReservedPattern)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), s.WriteCursor())
}

func TestAddEntry_DeviceError(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 1)

	mem.FailAfter(0)
	ok, err := s.AddEntry(ctx, testSample(1))
	assert.ErrorIs(t, err, flash.ErrInjected)
	assert.False(t, ok)
	assert.Equal(t, uint32(2), s.EntryCount())
}

func TestScan_DeviceErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 2, 2)

	mem.FailAfter(3)
	err := s.Scan(ctx)
	assert.ErrorIs(t, err, flash.ErrInjected)
	assert.Equal(t, uint32(2), s.SessionCount())
	assert.Equal(t, uint32(6), s.EntryCount())
}

func TestErase_DeviceError(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t, testSize)
	writeSessions(t, s, 2)

	mem.FailAfter(0)
	assert.ErrorIs(t, s.Erase(ctx), flash.ErrInjected)
	assert.Equal(t, uint32(1), s.SessionCount())
}
