package relayclient

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/relayctl/internal/protocol/relay"
)

// fakeDevice 每个连接读取一帧请求后回写固定应答
type fakeDevice struct {
	ln    net.Listener
	reply []byte
	reqs  chan []byte
	conns atomic.Int32
}

func startDevice(t *testing.T, reply []byte) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d := &fakeDevice{ln: ln, reply: reply, reqs: make(chan []byte, 64)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			d.conns.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, relay.RequestLen)
				if _, err := io.ReadFull(c, buf); err != nil {
					return
				}
				d.reqs <- buf
				if len(d.reply) > 0 {
					_, _ = c.Write(d.reply)
				}
			}(c)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return d
}

func (d *fakeDevice) addr() string { return d.ln.Addr().String() }

func (d *fakeDevice) lastRequest(t *testing.T) []byte {
	t.Helper()
	select {
	case r := <-d.reqs:
		return r
	case <-time.After(time.Second):
		t.Fatal("device received no request")
		return nil
	}
}

// pipeDialer 基于 net.Pipe 的内存连接
type pipeDialer struct {
	serve func(net.Conn)
}

func (p pipeDialer) Dial(network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	go p.serve(server)
	return client, nil
}

func TestNew_Defaults(t *testing.T) {
	c := New("10.0.0.5:3736")
	assert.Equal(t, "10.0.0.5:3736", c.Addr())
	assert.Equal(t, 2*time.Second, c.Timeout())

	c = New("x:1", WithTimeout(0))
	assert.Equal(t, DefaultTimeout, c.Timeout())
	c = New("x:1", WithTimeout(300*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, c.Timeout())
}

func TestPing(t *testing.T) {
	t.Run("pong", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x03})
		require.NoError(t, New(dev.addr()).Ping())
		assert.Equal(t, []byte{0xA5, 0x01, 0x00, 0x00}, dev.lastRequest(t))
	})

	t.Run("firmware pong with length byte", func(t *testing.T) {
		dev := startDevice(t, relay.PongResponse())
		assert.NoError(t, New(dev.addr()).Ping())
	})

	t.Run("ok instead of pong", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x00})
		assert.ErrorIs(t, New(dev.addr()).Ping(), ErrInvalidPingResponse)
	})

	t.Run("magic only", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5})
		assert.ErrorIs(t, New(dev.addr()).Ping(), ErrInvalidPingResponse)
	})

	t.Run("unknown kind", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x09})
		err := New(dev.addr()).Ping()
		var unknown *relay.UnknownResponseError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, byte(0x09), unknown.Code)
		assert.True(t, IsProtocolError(err))
	})

	t.Run("bad magic", func(t *testing.T) {
		dev := startDevice(t, []byte{0x5A, 0x03})
		assert.ErrorIs(t, New(dev.addr()).Ping(), relay.ErrInvalidMagic)
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("bitmask", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x02, 0x00, 0b00000101})
		mask, err := New(dev.addr()).GetStatus()
		require.NoError(t, err)
		assert.Equal(t, byte(5), mask)
		assert.Equal(t, []bool{true, false, true, false}, relay.States(mask, 4))
		assert.Equal(t, []byte{0xA5, 0x02, 0x00, 0x00}, dev.lastRequest(t))
	})

	t.Run("too short", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x02})
		_, err := New(dev.addr()).GetStatus()
		assert.ErrorIs(t, err, ErrInvalidStatusResponse)
	})

	t.Run("short with unknown kind is still shape error", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x77})
		_, err := New(dev.addr()).GetStatus()
		assert.ErrorIs(t, err, ErrInvalidStatusResponse)
	})

	t.Run("wrong kind", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x00, 0x00, 0x05})
		_, err := New(dev.addr()).GetStatus()
		assert.ErrorIs(t, err, ErrInvalidStatusResponse)
	})

	t.Run("unknown kind", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x10, 0x00, 0x05})
		_, err := New(dev.addr()).GetStatus()
		var unknown *relay.UnknownResponseError
		assert.True(t, errors.As(err, &unknown))
	})
}

func TestSetRelay(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x00})
		require.NoError(t, New(dev.addr()).SetRelay(3, true))
		assert.Equal(t, []byte{0xA5, 0x03, 0x03, 0x01}, dev.lastRequest(t))
	})

	t.Run("off encodes zero", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x00})
		require.NoError(t, New(dev.addr()).SetRelay(1, false))
		assert.Equal(t, []byte{0xA5, 0x03, 0x01, 0x00}, dev.lastRequest(t))
	})

	t.Run("device error code", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x01, 0x00, 0x07})
		err := New(dev.addr()).SetRelay(3, true)
		de, ok := IsDeviceError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, byte(0x07), de.Code)
		assert.Equal(t, relay.CmdSetRelay, de.Cmd)
		assert.Equal(t, "device error: 0x07", err.Error())
		assert.False(t, IsProtocolError(err))
	})

	t.Run("device error without code", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x01})
		err := New(dev.addr()).SetRelay(3, true)
		de, ok := IsDeviceError(err)
		require.True(t, ok)
		assert.Equal(t, NoErrorCode, de.Code)
	})

	t.Run("pong is invalid", func(t *testing.T) {
		dev := startDevice(t, []byte{0xA5, 0x03})
		assert.ErrorIs(t, New(dev.addr()).SetRelay(0, true), ErrInvalidResponse)
	})
}

func TestToggleRelay(t *testing.T) {
	dev := startDevice(t, []byte{0xA5, 0x00})
	require.NoError(t, New(dev.addr()).ToggleRelay(2))
	assert.Equal(t, []byte{0xA5, 0x04, 0x02, 0x00}, dev.lastRequest(t))

	dev = startDevice(t, relay.ErrorResponse(relay.ErrCodeInvalidRelay))
	err := New(dev.addr()).ToggleRelay(9)
	de, ok := IsDeviceError(err)
	require.True(t, ok)
	assert.Equal(t, relay.ErrCodeInvalidRelay, de.Code)
	assert.Equal(t, "device error: 0x01 (invalid relay)", err.Error())

	dev = startDevice(t, []byte{0xA5, 0x02, 0x00, 0x01})
	assert.ErrorIs(t, New(dev.addr()).ToggleRelay(0), ErrInvalidResponse)
}

func TestSetAll(t *testing.T) {
	dev := startDevice(t, []byte{0xA5, 0x00})
	require.NoError(t, New(dev.addr()).SetAll(0xFF))
	assert.Equal(t, []byte{0xA5, 0x05, 0xFF, 0x00}, dev.lastRequest(t))

	for _, reply := range [][]byte{
		{0xA5, 0x01, 0x00, 0x07}, // Err 不单独解析
		{0xA5, 0x02, 0x00, 0x01},
		{0xA5, 0x03},
	} {
		dev := startDevice(t, reply)
		err := New(dev.addr()).SetAll(0x0F)
		assert.ErrorIs(t, err, ErrInvalidResponse, "reply % X", reply)
		_, isDevice := IsDeviceError(err)
		assert.False(t, isDevice)
	}
}

func TestExchange_EmptyResponse(t *testing.T) {
	// 设备读完请求直接关闭
	c := New("relay:3736", WithDialer(pipeDialer{serve: func(conn net.Conn) {
		buf := make([]byte, relay.RequestLen)
		_, _ = io.ReadFull(conn, buf)
		_ = conn.Close()
	}}))
	assert.ErrorIs(t, c.Ping(), relay.ErrInvalidMagic)
}

func TestExchange_ReadTimeout(t *testing.T) {
	done := make(chan struct{})
	c := New("relay:3736",
		WithTimeout(50*time.Millisecond),
		WithDialer(pipeDialer{serve: func(conn net.Conn) {
			defer close(done)
			buf := make([]byte, relay.RequestLen)
			_, _ = io.ReadFull(conn, buf)
			// 不应答，等待客户端超时后关闭
			_, _ = conn.Read(buf)
			_ = conn.Close()
		}}),
	)
	start := time.Now()
	_, err := c.GetStatus()
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "got %v", err)
	assert.False(t, IsProtocolError(err))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not released after timeout")
	}
}

func TestExchange_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = New(addr, WithTimeout(200*time.Millisecond)).Ping()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect "+addr)
	assert.False(t, IsProtocolError(err))
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
}

type countingDialer struct {
	n atomic.Int32
	d net.Dialer
}

func (c *countingDialer) Dial(network, address string) (net.Conn, error) {
	c.n.Add(1)
	return c.d.Dial(network, address)
}

func TestClient_OneConnectionPerCall(t *testing.T) {
	dev := startDevice(t, []byte{0xA5, 0x02, 0x00, 0x0F})
	dialer := &countingDialer{}
	c := New(dev.addr(), WithDialer(dialer))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mask, err := c.GetStatus()
			if err == nil && mask != 0x0F {
				err = errors.New("unexpected mask")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(workers), dialer.n.Load())
	assert.Equal(t, int32(workers), dev.conns.Load())
}
