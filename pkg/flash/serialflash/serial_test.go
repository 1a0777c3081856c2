package serialflash

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/itohio/goalt/pkg/bridge"
	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/datastore"
	"github.com/itohio/goalt/pkg/flash"
	"github.com/itohio/goalt/pkg/record"
	"github.com/itohio/goalt/pkg/recorder"
	"github.com/itohio/goalt/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBridged connects a Serial client to a bridge serving dev over a pipe.
func newBridged(t *testing.T, dev bridge.Target) *Serial {
	t.Helper()

	host, board := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.Serve(ctx, board, dev)
	}()

	s := New("pipe", 0, time.Second)
	require.NoError(t, s.attach(context.Background(), host))

	t.Cleanup(func() {
		cancel()
		s.Close()
		board.Close()
		<-done
	})
	return s
}

func TestNew_Defaults(t *testing.T) {
	s := New("/dev/ttyACM0", 0, 0)
	assert.Equal(t, DefaultBaudRate, s.baudRate)
	assert.Equal(t, DefaultTimeout, s.timeout)
	assert.False(t, s.IsConnected())
}

func TestSerial_Size(t *testing.T) {
	s := newBridged(t, flash.NewMemory(4096))
	assert.True(t, s.IsConnected())
	assert.Equal(t, uint32(4096), s.Size())
}

func TestSerial_WriteReadAcrossChunks(t *testing.T) {
	ctx := context.Background()
	mem := flash.NewMemory(4096)
	s := newBridged(t, mem)

	data := make([]byte, bridge.MaxChunk*2+17)
	for i := range data {
		data[i] = byte(i * 7)
	}

	require.NoError(t, s.WriteSequential(ctx, 100, data))
	assert.Equal(t, data, mem.Bytes()[100:100+len(data)])

	got, err := s.ReadRange(ctx, 100, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, writes, _ := mem.Counters()
	assert.Equal(t, 3, writes)
}

func TestSerial_Erase(t *testing.T) {
	ctx := context.Background()
	mem := flash.NewMemory(64)
	s := newBridged(t, mem)

	require.NoError(t, s.WriteSequential(ctx, 0, []byte{1, 2, 3}))
	require.NoError(t, s.EraseAll(ctx))

	got, err := s.ReadRange(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{flash.Erased, flash.Erased, flash.Erased}, got)
}

func TestSerial_OutOfRangeIsCheckedLocally(t *testing.T) {
	s := newBridged(t, flash.NewMemory(64))

	_, err := s.ReadRange(context.Background(), 60, 5)
	assert.ErrorIs(t, err, flash.ErrOutOfRange)
}

func TestSerial_DeviceError(t *testing.T) {
	mem := flash.NewMemory(64)
	s := newBridged(t, mem)
	mem.FailAfter(0)

	_, err := s.ReadRange(context.Background(), 0, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), flash.ErrInjected.Error())

	// the link stays usable
	mem.FailAfter(-1)
	_, err = s.ReadRange(context.Background(), 0, 4)
	assert.NoError(t, err)
}

func TestSerial_NotConnected(t *testing.T) {
	s := New("nowhere", 0, 0)
	s.size = 16

	_, err := s.ReadRange(context.Background(), 0, 1)
	assert.Error(t, err)
}

// silentConn accepts requests and never answers, like a hung bridge.
type silentConn struct {
	timeout time.Duration
}

func (c *silentConn) Read(p []byte) (int, error) {
	time.Sleep(c.timeout)
	return 0, nil
}

func (c *silentConn) Write(p []byte) (int, error) { return len(p), nil }

func (c *silentConn) Close() error { return nil }

func (c *silentConn) SetReadTimeout(t time.Duration) error {
	c.timeout = t
	return nil
}

func TestSerial_Timeout(t *testing.T) {
	s := New("silent", 0, 50*time.Millisecond)

	start := time.Now()
	err := s.attach(context.Background(), &silentConn{})
	assert.ErrorIs(t, err, flash.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, s.IsConnected())
}

func TestSerial_ContextDeadlineWins(t *testing.T) {
	s := New("silent", 0, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.attach(ctx, &silentConn{})
	assert.ErrorIs(t, err, flash.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// The board logs into its own store, stops, and the host reads the same chip
// through the bridge.
func TestSerial_DownloadAfterLogging(t *testing.T) {
	ctx := context.Background()
	chip := flash.NewMemory(4096)

	board := datastore.New(chip)
	require.NoError(t, board.Scan(ctx))

	mockCfg := config.Default().Mock
	mockCfg.NoiseLevel = 0
	mock := sensor.NewMock(&mockCfg)
	rec := recorder.New(board, mock.Set(), config.LoggingConfig{Interval: time.Millisecond, Oversample: 1})
	for range 5 {
		ok, err := rec.Step(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		mock.Advance(500 * time.Millisecond)
	}
	require.True(t, rec.EndSession())

	s := newBridged(t, chip)
	host := datastore.New(flash.NewReadAhead(s, flash.DefaultWindow))
	require.NoError(t, host.Scan(ctx))
	assert.Equal(t, board.WriteCursor(), host.WriteCursor())
	assert.Equal(t, uint32(1), host.SessionCount())

	sessions, err := host.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Samples, 5)
	assert.Equal(t, record.Quantize(rec.Stats().Last), sessions[0].Samples[4])
}
