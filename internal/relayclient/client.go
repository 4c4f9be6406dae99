package relayclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/taoyao-code/relayctl/internal/protocol/relay"
)

// DefaultTimeout 连接与单次读写超时
const DefaultTimeout = 2 * time.Second

// Dialer 建立到继电器板的连接，测试中可替换
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// Client 继电器板客户端。
// 每次操作独立建连、发送、读取一次应答后关闭，不复用连接，可被多个 goroutine 并发调用。
type Client struct {
	addr    string
	timeout time.Duration
	dialer  Dialer
}

// Option 客户端可选项
type Option func(*Client)

// WithTimeout 覆盖默认超时，<=0 忽略
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDialer 替换拨号器
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// New 创建客户端，addr 形如 host:port
func New(addr string, opts ...Option) *Client {
	c := &Client{addr: addr, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: c.timeout}
	}
	return c
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) Timeout() time.Duration { return c.timeout }

// Ping 探活，期望 Pong
func (c *Client) Ping() error {
	resp, err := c.exchange(relay.CmdPing, 0, 0)
	if err != nil {
		return err
	}
	if len(resp) >= 2 {
		kind, err := relay.ParseResponseKind(resp[1])
		if err != nil {
			return err
		}
		if kind == relay.KindPong {
			return nil
		}
	}
	return ErrInvalidPingResponse
}

// GetStatus 读取全部继电器状态位图，第 i 位对应第 i 路
func (c *Client) GetStatus() (byte, error) {
	resp, err := c.exchange(relay.CmdGetStatus, 0, 0)
	if err != nil {
		return 0, err
	}
	if len(resp) > relay.PayloadIndex {
		kind, err := relay.ParseResponseKind(resp[1])
		if err != nil {
			return 0, err
		}
		if kind == relay.KindStatus {
			return resp[relay.PayloadIndex], nil
		}
	}
	return 0, ErrInvalidStatusResponse
}

// SetRelay 设置单路状态
func (c *Client) SetRelay(id byte, on bool) error {
	var v byte
	if on {
		v = 1
	}
	resp, err := c.exchange(relay.CmdSetRelay, id, v)
	if err != nil {
		return err
	}
	return checkAck(relay.CmdSetRelay, resp, true)
}

// ToggleRelay 翻转单路状态
func (c *Client) ToggleRelay(id byte) error {
	resp, err := c.exchange(relay.CmdToggleRelay, id, 0)
	if err != nil {
		return err
	}
	return checkAck(relay.CmdToggleRelay, resp, true)
}

// SetAll 按位图一次设置全部继电器。
// 与 SetRelay 不同，Err 应答不解析错误码，统一视为 ErrInvalidResponse（与现有固件行为一致）。
func (c *Client) SetAll(mask byte) error {
	resp, err := c.exchange(relay.CmdSetAll, mask, 0)
	if err != nil {
		return err
	}
	return checkAck(relay.CmdSetAll, resp, false)
}

// checkAck 解释 Ok/Err 型应答；deviceErr 为 false 时 Err 与其它类型一样视为无效应答
func checkAck(cmd relay.Command, resp []byte, deviceErr bool) error {
	if len(resp) >= 2 {
		kind, err := relay.ParseResponseKind(resp[1])
		if err != nil {
			return err
		}
		switch {
		case kind == relay.KindOk:
			return nil
		case kind == relay.KindErr && deviceErr:
			code := NoErrorCode
			if len(resp) > relay.PayloadIndex {
				code = resp[relay.PayloadIndex]
			}
			return &DeviceError{Cmd: cmd, Code: code}
		}
	}
	return ErrInvalidResponse
}

// exchange 一次完整交互：建连 -> 写请求 -> 读一次（至多 64 字节）-> 校验 magic
func (c *Client) exchange(cmd relay.Command, arg1, arg2 byte) ([]byte, error) {
	conn, err := c.dialer.Dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(relay.EncodeRequest(cmd, arg1, arg2)); err != nil {
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	buf := make([]byte, relay.MaxResponseLen)
	n, err := conn.Read(buf)
	// 对端直接关闭视为空应答，由 magic 校验拒绝
	if err != nil && n == 0 && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("receive %s: %w", cmd, err)
	}
	resp := buf[:n]

	if err := relay.ValidateEnvelope(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
