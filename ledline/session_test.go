package ledline

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"math"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/frame"
	"github.com/reosfire/xywire-sub000/metric"
	"github.com/reosfire/xywire-sub000/pkg/retry"
	"github.com/reosfire/xywire-sub000/testutil"
)

func dialFake(t *testing.T, dev *testutil.FakeDevice, opts ...Option) *Session {
	t.Helper()
	s, err := Dial(context.Background(), Config{
		Name:       "matrix",
		Address:    dev.Addr(),
		Layout:     Layout{Rows: 2, Columns: 2},
		AckTimeout: 50 * time.Millisecond,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func retryCounting(n *int) retry.Config {
	cfg := retry.Quick()
	cfg.OnRetry = func(int, error, time.Duration) { *n++ }
	return cfg
}

func TestSession_SendFrameIncrementsGeneration(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev)

	buf := frame.NewBuffer(2, 2)
	buf.Fill(frame.RGB(10, 20, 30))
	for range 3 {
		require.NoError(t, s.SendFrame(buf))
	}

	packets := dev.WaitForPackets(t, 3, 2*time.Second)
	for i, p := range packets {
		require.Len(t, p, s.Layout().PacketSize())
		assert.Equal(t, OpData, p[0])
		assert.Equal(t, uint32(i+1), binary.LittleEndian.Uint32(p[1:5]))
		assert.Equal(t, []byte{10, 20, 30}, p[5:8])
	}

	assert.Equal(t, uint32(3), s.Generation())
	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.FramesSent)
	assert.Equal(t, uint64(3*s.Layout().PacketSize()), stats.BytesSent)
	assert.Zero(t, dev.Replies())
}

func TestSession_GenerationWrapsAround(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev)
	s.generation.Store(math.MaxUint32)

	require.NoError(t, s.SendFrame(frame.NewBuffer(2, 2)))
	assert.Equal(t, uint32(0), s.Generation())

	packets := dev.WaitForPackets(t, 1, 2*time.Second)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(packets[0][1:5]))
}

func TestSession_MaxFPSDropsExcessFrames(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s, err := Dial(context.Background(), Config{
		Address: dev.Addr(),
		Layout:  Layout{Rows: 1, Columns: 1},
		MaxFPS:  1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	buf := frame.NewBuffer(1, 1)
	for range 5 {
		require.NoError(t, s.SendFrame(buf))
	}

	dev.WaitForPackets(t, 1, 2*time.Second)
	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.FramesSent)
	assert.Equal(t, uint64(4), stats.FramesDropped)
	assert.Equal(t, uint32(1), s.Generation())
}

func TestSession_ClearAndBrightness(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.SetBrightness(ctx, 200))

	assert.Equal(t, [][]byte{{0x03}, {0x01, 200}}, dev.Packets())
	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.ReliableAttempts)
	assert.Equal(t, uint64(2), stats.ReliableAcks)
	assert.True(t, s.Health().IsHealthy())
}

func TestSession_SendAckedResendsUntilReply(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	dev.DropReplies(2)
	s := dialFake(t, dev)

	start := time.Now()
	require.NoError(t, s.Clear(context.Background()))

	assert.Len(t, dev.PacketsWithOpcode(OpClear), 3)
	assert.Equal(t, uint64(3), s.Stats().ReliableAttempts)
	assert.Equal(t, uint64(1), s.Stats().ReliableAcks)
	assert.GreaterOrEqual(t, time.Since(start), 2*50*time.Millisecond)
	assert.True(t, s.Health().IsDegraded())
}

func TestSession_SendAckedHonorsContext(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	dev.SetSilent(true)
	s := dialFake(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 130*time.Millisecond)
	defer cancel()

	err := s.Clear(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, s.Stats().ReliableAttempts, uint64(2))
	assert.NoError(t, s.Err())
}

func TestSession_CloseFailsPendingAndFutureSends(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	dev.SetSilent(true)
	s := dialFake(t, dev)

	result := make(chan error, 1)
	go func() { result <- s.Clear(context.Background()) }()

	require.Eventually(t, func() bool { return s.Stats().ReliableAttempts >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending reliable send did not return after Close")
	}

	assert.ErrorIs(t, s.SendFrame(frame.NewBuffer(2, 2)), ErrSessionClosed)
	assert.ErrorIs(t, s.Clear(context.Background()), ErrSessionClosed)
	assert.NoError(t, s.Close())
	assert.True(t, s.Health().IsUnhealthy())
}

func TestSession_SocketErrorFaultsSession(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev)
	dev.Close()

	buf := frame.NewBuffer(2, 2)
	require.Eventually(t, func() bool {
		_ = s.SendFrame(buf)
		return s.Err() != nil
	}, 3*time.Second, 20*time.Millisecond)

	fault := s.Err()
	assert.ErrorIs(t, fault, ErrSessionFaulted)
	assert.True(t, errors.IsFatal(fault))

	assert.Equal(t, fault, s.SendFrame(buf))
	assert.Equal(t, fault, s.Clear(context.Background()))
	assert.True(t, s.Health().IsUnhealthy())
}

func TestSession_ReliableExchangesAreSerialized(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func(level uint8) {
			defer wg.Done()
			errs <- s.SetBrightness(context.Background(), level)
		}(uint8(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(10), s.Stats().ReliableAcks)
}

func TestSession_SendAckedRejectsEmptyPacket(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev)
	err := s.SendAcked(context.Background(), nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestDial_InvalidConfig(t *testing.T) {
	_, err := Dial(context.Background(), Config{Layout: Layout{Rows: 2, Columns: 2}})
	assert.True(t, errors.IsInvalid(err))

	_, err = Dial(context.Background(), Config{Address: "127.0.0.1:9", Layout: Layout{Rows: 0, Columns: 2}})
	assert.True(t, errors.IsInvalid(err))

	_, err = Dial(context.Background(), Config{Address: "127.0.0.1:9", Layout: Layout{Rows: 1, Columns: 1}, MaxFPS: -1})
	assert.True(t, errors.IsInvalid(err))
}

func TestDial_MalformedAddressIsNotRetried(t *testing.T) {
	var retries int
	_, err := Dial(context.Background(),
		Config{Address: "no-port-here", Layout: Layout{Rows: 1, Columns: 1}},
		WithDialRetry(retryCounting(&retries)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeviceUnreachable)
	assert.Zero(t, retries)
}

func TestSession_Metrics(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewMetrics(metric.NewMetricsRegistry())
	require.NoError(t, err)

	dev := testutil.NewFakeDevice(t)
	s := dialFake(t, dev, WithMetrics(m))
	require.NoError(t, s.SendFrame(frame.NewBuffer(2, 2)))
	require.NoError(t, s.Clear(context.Background()))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.framesSent.WithLabelValues("matrix")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.reliableAttempts.WithLabelValues("matrix")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.reliableAcks.WithLabelValues("matrix")))
	assert.Equal(t, float64(s.Layout().PacketSize()+1), promtest.ToFloat64(m.bytesSent.WithLabelValues("matrix")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.faulted.WithLabelValues("matrix")))
	assert.Equal(t, 1, promtest.CollectAndCount(m.ackLatency, "xywire_ledline_ack_latency_seconds"))
}

func TestDirectory(t *testing.T) {
	devA := testutil.NewFakeDevice(t)
	devB := testutil.NewFakeDevice(t)

	a, err := Dial(context.Background(), Config{Name: "b-side", Address: devA.Addr(), Layout: Layout{Rows: 1, Columns: 1}})
	require.NoError(t, err)
	b, err := Dial(context.Background(), Config{Name: "a-side", Address: devB.Addr(), Layout: Layout{Rows: 1, Columns: 1}})
	require.NoError(t, err)

	d := NewDirectory()
	require.NoError(t, d.Add(a))
	require.NoError(t, d.Add(b))
	assert.True(t, errors.IsInvalid(d.Add(a)))
	assert.Error(t, d.Add(nil))

	assert.Equal(t, []string{"a-side", "b-side"}, d.Names())

	got, ok := d.Lookup("a-side")
	require.True(t, ok)
	assert.Same(t, b, got)

	sink, ok := d.Device("b-side")
	require.True(t, ok)
	require.NoError(t, sink.SendFrame(frame.NewBuffer(1, 1)))
	devA.WaitForPackets(t, 1, 2*time.Second)

	_, ok = d.Device("missing")
	assert.False(t, ok)

	statuses := d.Health()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a-side", statuses[0].Component)

	require.NoError(t, d.CloseAll())
	assert.Empty(t, d.Names())
	assert.True(t, stderrors.Is(a.Err(), ErrSessionClosed))
	assert.True(t, stderrors.Is(b.Err(), ErrSessionClosed))
}
