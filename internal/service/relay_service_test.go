package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/metrics"
	"github.com/taoyao-code/relayctl/internal/protocol/relay"
	"github.com/taoyao-code/relayctl/internal/relayclient"
	"github.com/taoyao-code/relayctl/internal/simulator"
	"github.com/taoyao-code/relayctl/internal/storage/pg"
	redisstorage "github.com/taoyao-code/relayctl/internal/storage/redis"
)

// stubClient 可编程的客户端替身
type stubClient struct {
	mask byte
	err  error
}

func (c *stubClient) Addr() string              { return "10.0.0.9:3736" }
func (c *stubClient) Ping() error               { return c.err }
func (c *stubClient) GetStatus() (byte, error)  { return c.mask, c.err }
func (c *stubClient) SetRelay(byte, bool) error { return c.err }
func (c *stubClient) ToggleRelay(byte) error    { return c.err }
func (c *stubClient) SetAll(mask byte) error    { return c.err }

type memCache struct {
	mu   sync.Mutex
	data map[string]redisstorage.CachedStatus
}

func newMemCache() *memCache { return &memCache{data: map[string]redisstorage.CachedStatus{}} }

func (m *memCache) Put(_ context.Context, st redisstorage.CachedStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	m.data[st.DeviceAddr] = st
	return nil
}

func (m *memCache) Get(_ context.Context, addr string) (*redisstorage.CachedStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.data[addr]
	if !ok {
		return nil, redisstorage.ErrStatusNotCached
	}
	return &st, nil
}

func (m *memCache) Update(_ context.Context, addr, source string, apply func(byte) byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.data[addr]
	if !ok {
		return redisstorage.ErrStatusNotCached
	}
	st.Mask = apply(st.Mask)
	st.Source = source
	st.UpdatedAt = time.Now()
	m.data[addr] = st
	return nil
}

func (m *memCache) Invalidate(_ context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, addr)
	return nil
}

type memLog struct {
	mu      sync.Mutex
	entries []pg.CommandLog
}

func (m *memLog) InsertCommand(_ context.Context, l pg.CommandLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, l)
	return nil
}

func TestClassify(t *testing.T) {
	timeoutErr := fmt.Errorf("receive x: %w", &net.OpError{Op: "read", Err: timeoutError{}})
	cases := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{ErrBreakerOpen, ResultRejected},
		{&relayclient.DeviceError{Cmd: relay.CmdSetRelay, Code: 1}, ResultDeviceError},
		{relay.ErrInvalidMagic, ResultProtocolError},
		{relayclient.ErrInvalidStatusResponse, ResultProtocolError},
		{&relay.UnknownResponseError{Code: 0x77}, ResultProtocolError},
		{timeoutErr, ResultTransportError},
		{fmt.Errorf("receive x: %w", io.ErrUnexpectedEOF), ResultTransportError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestRelayService_StatusWritesCacheAndLog(t *testing.T) {
	cache := newMemCache()
	cmdLog := &memLog{}
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	svc := NewRelayService(&stubClient{mask: 0x05}, 4,
		WithStatusCache(cache), WithCommandLog(cmdLog), WithMetrics(m))

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, st.CommandID)
	assert.Equal(t, "0x05", st.MaskHex)
	assert.Equal(t, []RelayState{{0, true}, {1, false}, {2, true}, {3, false}}, st.Relays)

	cached, err := svc.CachedStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, byte(0x05), cached.Mask)

	require.Len(t, cmdLog.entries, 1)
	assert.Equal(t, "get_status", cmdLog.entries[0].Cmd)
	assert.Equal(t, ResultOK, cmdLog.entries[0].Result)
	assert.Equal(t, st.CommandID, cmdLog.entries[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangeTotal.WithLabelValues("get_status", ResultOK)))
}

func TestRelayService_MutationsPatchCache(t *testing.T) {
	cache := newMemCache()
	svc := NewRelayService(&stubClient{}, 8, WithStatusCache(cache))
	ctx := context.Background()

	// 无基准状态时不写缓存
	_, err := svc.SetRelay(ctx, 1, true)
	require.NoError(t, err)
	_, err = svc.CachedStatus(ctx)
	assert.ErrorIs(t, err, redisstorage.ErrStatusNotCached)

	_, err = svc.SetAll(ctx, 0x0F)
	require.NoError(t, err)
	_, err = svc.SetRelay(ctx, 0, false)
	require.NoError(t, err)
	_, err = svc.ToggleRelay(ctx, 7)
	require.NoError(t, err)

	cached, err := svc.CachedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x8E), cached.Mask)
}

func TestRelayService_ConcurrentTogglesKeepEveryBit(t *testing.T) {
	cache := newMemCache()
	svc := NewRelayService(&stubClient{}, 8, WithStatusCache(cache))
	ctx := context.Background()

	_, err := svc.SetAll(ctx, 0x00)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for id := byte(0); id < 8; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ToggleRelay(ctx, id)
		}()
	}
	wg.Wait()

	cached, err := svc.CachedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), cached.Mask)
}

func TestRelayService_UnknownOutcomeDropsCache(t *testing.T) {
	cache := newMemCache()
	client := &stubClient{}
	svc := NewRelayService(client, 8, WithStatusCache(cache))
	ctx := context.Background()

	_, err := svc.SetAll(ctx, 0x03)
	require.NoError(t, err)

	// 设备明确拒绝：状态未变，缓存保留
	client.err = &relayclient.DeviceError{Cmd: relay.CmdSetRelay, Code: relay.ErrCodeInvalidRelay}
	_, err = svc.SetRelay(ctx, 9, true)
	require.Error(t, err)
	cached, err := svc.CachedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), cached.Mask)

	// 超时：指令可能已执行，缓存作废
	client.err = fmt.Errorf("receive: %w", &net.OpError{Op: "read", Err: timeoutError{}})
	_, err = svc.ToggleRelay(ctx, 0)
	require.Error(t, err)
	_, err = svc.CachedStatus(ctx)
	assert.ErrorIs(t, err, redisstorage.ErrStatusNotCached)

	client.err = nil
	_, err = svc.SetAll(ctx, 0x01)
	require.NoError(t, err)
	client.err = relayclient.ErrInvalidResponse
	_, err = svc.SetAll(ctx, 0x02)
	require.Error(t, err)
	_, err = svc.CachedStatus(ctx)
	assert.ErrorIs(t, err, redisstorage.ErrStatusNotCached)
}

func TestRelayService_DeviceErrorDoesNotTripBreaker(t *testing.T) {
	cmdLog := &memLog{}
	client := &stubClient{err: &relayclient.DeviceError{Cmd: relay.CmdSetRelay, Code: relay.ErrCodeInvalidRelay}}
	svc := NewRelayService(client, 8, WithBreaker(NewBreaker(1, time.Minute)), WithCommandLog(cmdLog))

	for i := 0; i < 3; i++ {
		_, err := svc.SetRelay(context.Background(), 9, true)
		_, ok := relayclient.IsDeviceError(err)
		require.True(t, ok)
	}
	assert.Equal(t, BreakerClosed, svc.BreakerState())
	require.Len(t, cmdLog.entries, 3)
	assert.Equal(t, ResultDeviceError, cmdLog.entries[0].Result)
	assert.Equal(t, 9, cmdLog.entries[0].Arg1)
	assert.Equal(t, 1, cmdLog.entries[0].Arg2)
	assert.Contains(t, cmdLog.entries[0].ErrorMsg, "invalid relay")
}

func TestRelayService_BreakerRejects(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	client := &stubClient{err: errors.New("connect 10.0.0.9:3736: connection refused")}
	svc := NewRelayService(client, 8,
		WithBreaker(NewBreaker(2, time.Minute)), WithMetrics(m), WithLogger(zap.New(core)))

	for i := 0; i < 2; i++ {
		_, err := svc.Ping(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreakerOpen)
	}
	assert.Equal(t, BreakerOpen, svc.BreakerState())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))

	_, err := svc.Ping(context.Background())
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExchangeTotal.WithLabelValues("ping", ResultTransportError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangeTotal.WithLabelValues("ping", ResultRejected)))
	assert.Equal(t, 1, logs.FilterMessage("relay command refused").Len())
}

func TestRelayService_CacheDisabled(t *testing.T) {
	svc := NewRelayService(&stubClient{}, 0)
	assert.Equal(t, relay.MaxRelays, svc.RelayCount())
	_, err := svc.CachedStatus(context.Background())
	assert.ErrorIs(t, err, ErrCacheDisabled)
	assert.Equal(t, BreakerClosed, svc.BreakerState())
}

// 与内存模拟器联调
func TestRelayService_AgainstSimulator(t *testing.T) {
	srv, _ := simulator.NewServer(cfgpkg.SimulatorConfig{
		Addr:         "127.0.0.1:0",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		RelayCount:   4,
	}, nil, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	client := relayclient.New(srv.Addr().String(), relayclient.WithTimeout(time.Second))
	svc := NewRelayService(client, 4, WithBreaker(NewBreaker(3, time.Minute)))
	ctx := context.Background()

	_, err := svc.Ping(ctx)
	require.NoError(t, err)
	_, err = svc.SetAll(ctx, 0x03)
	require.NoError(t, err)
	_, err = svc.ToggleRelay(ctx, 3)
	require.NoError(t, err)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0B), st.Mask)
	assert.Equal(t, srv.Addr().String(), st.DeviceAddr)

	_, err = svc.SetRelay(ctx, 5, true)
	assert.Equal(t, ResultDeviceError, Classify(err))
}
