package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/relayctl/internal/metrics"
	"github.com/taoyao-code/relayctl/internal/protocol/relay"
	"github.com/taoyao-code/relayctl/internal/relayclient"
	"github.com/taoyao-code/relayctl/internal/storage/pg"
	redisstorage "github.com/taoyao-code/relayctl/internal/storage/redis"
)

// 指令结果分类，用于指标与指令日志
const (
	ResultOK             = "ok"
	ResultDeviceError    = "device_error"
	ResultProtocolError  = "protocol_error"
	ResultTransportError = "transport_error"
	ResultRejected       = "rejected"
)

// ErrCacheDisabled 未启用状态缓存
var ErrCacheDisabled = errors.New("status cache is disabled")

// RelayClient 继电器板客户端，*relayclient.Client 实现
type RelayClient interface {
	Addr() string
	Ping() error
	GetStatus() (byte, error)
	SetRelay(id byte, on bool) error
	ToggleRelay(id byte) error
	SetAll(mask byte) error
}

// StatusCache 最近已知状态缓存，*redisstorage.StatusCache 实现
type StatusCache interface {
	Put(ctx context.Context, st redisstorage.CachedStatus) error
	Get(ctx context.Context, addr string) (*redisstorage.CachedStatus, error)
	Update(ctx context.Context, addr, source string, apply func(mask byte) byte) error
	Invalidate(ctx context.Context, addr string) error
}

// CommandLogger 指令日志，*pg.Repository 实现
type CommandLogger interface {
	InsertCommand(ctx context.Context, l pg.CommandLog) error
}

// RelayState 单路状态
type RelayState struct {
	ID int  `json:"id" yaml:"id"`
	On bool `json:"on" yaml:"on"`
}

// RelayStatus 继电器板状态视图
type RelayStatus struct {
	CommandID  string       `json:"command_id,omitempty" yaml:"command_id,omitempty"`
	DeviceAddr string       `json:"device_addr" yaml:"device_addr"`
	Mask       byte         `json:"mask" yaml:"mask"`
	MaskHex    string       `json:"mask_hex" yaml:"mask_hex"`
	Relays     []RelayState `json:"relays" yaml:"relays"`
	Cached     bool         `json:"cached" yaml:"cached"`
	UpdatedAt  time.Time    `json:"updated_at" yaml:"updated_at"`
}

// NewRelayStatus 按前 n 路展开位图
func NewRelayStatus(addr string, mask byte, n int) *RelayStatus {
	states := relay.States(mask, n)
	relays := make([]RelayState, len(states))
	for i, on := range states {
		relays[i] = RelayState{ID: i, On: on}
	}
	return &RelayStatus{
		DeviceAddr: addr,
		Mask:       mask,
		MaskHex:    fmt.Sprintf("0x%02X", mask),
		Relays:     relays,
		UpdatedAt:  time.Now(),
	}
}

// RelayService 网关侧继电器操作：指令ID、日志、指标、熔断、缓存与指令日志
type RelayService struct {
	client     RelayClient
	relayCount int
	logger     *zap.Logger
	metrics    *metrics.AppMetrics
	breaker    *Breaker
	cache      StatusCache
	cmdLog     CommandLogger
}

// Option 服务可选依赖
type Option func(*RelayService)

func WithLogger(l *zap.Logger) Option { return func(s *RelayService) { s.logger = l } }

func WithMetrics(m *metrics.AppMetrics) Option { return func(s *RelayService) { s.metrics = m } }

func WithBreaker(b *Breaker) Option { return func(s *RelayService) { s.breaker = b } }

func WithStatusCache(c StatusCache) Option { return func(s *RelayService) { s.cache = c } }

func WithCommandLog(l CommandLogger) Option { return func(s *RelayService) { s.cmdLog = l } }

// NewRelayService relayCount 超出 1..8 时取 8
func NewRelayService(client RelayClient, relayCount int, opts ...Option) *RelayService {
	if relayCount <= 0 || relayCount > relay.MaxRelays {
		relayCount = relay.MaxRelays
	}
	s := &RelayService{client: client, relayCount: relayCount}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.breaker != nil && s.metrics != nil {
		gauge := s.metrics.BreakerState
		s.breaker.OnStateChange(func(st BreakerState) { gauge.Set(float64(st)) })
	}
	return s
}

func (s *RelayService) DeviceAddr() string { return s.client.Addr() }

func (s *RelayService) RelayCount() int { return s.relayCount }

// BreakerState 未配置熔断时恒为 closed
func (s *RelayService) BreakerState() BreakerState {
	if s.breaker == nil {
		return BreakerClosed
	}
	return s.breaker.State()
}

// Ping 探活，返回指令ID
func (s *RelayService) Ping(ctx context.Context) (string, error) {
	return s.run(ctx, relay.CmdPing, 0, 0, s.client.Ping)
}

// Status 实时查询状态，成功后写缓存
func (s *RelayService) Status(ctx context.Context) (*RelayStatus, error) {
	var mask byte
	id, err := s.run(ctx, relay.CmdGetStatus, 0, 0, func() error {
		var err error
		mask, err = s.client.GetStatus()
		return err
	})
	if err != nil {
		return nil, err
	}
	st := NewRelayStatus(s.client.Addr(), mask, s.relayCount)
	st.CommandID = id
	s.putCache(ctx, mask, relay.CmdGetStatus)
	return st, nil
}

// CachedStatus 读取最近已知状态，不访问设备
func (s *RelayService) CachedStatus(ctx context.Context) (*RelayStatus, error) {
	if s.cache == nil {
		return nil, ErrCacheDisabled
	}
	cs, err := s.cache.Get(ctx, s.client.Addr())
	if err != nil {
		return nil, err
	}
	st := NewRelayStatus(cs.DeviceAddr, cs.Mask, s.relayCount)
	st.Cached = true
	st.UpdatedAt = cs.UpdatedAt
	return st, nil
}

// SetRelay 设置单路
func (s *RelayService) SetRelay(ctx context.Context, id byte, on bool) (string, error) {
	var arg2 byte
	if on {
		arg2 = 1
	}
	cmdID, err := s.run(ctx, relay.CmdSetRelay, id, arg2, func() error {
		return s.client.SetRelay(id, on)
	})
	s.patchCache(ctx, relay.CmdSetRelay, err, func(mask byte) byte {
		if on {
			return mask | 1<<id
		}
		return mask &^ (1 << id)
	})
	return cmdID, err
}

// ToggleRelay 翻转单路
func (s *RelayService) ToggleRelay(ctx context.Context, id byte) (string, error) {
	cmdID, err := s.run(ctx, relay.CmdToggleRelay, id, 0, func() error {
		return s.client.ToggleRelay(id)
	})
	s.patchCache(ctx, relay.CmdToggleRelay, err, func(mask byte) byte { return mask ^ 1<<id })
	return cmdID, err
}

// SetAll 整板写入位图
func (s *RelayService) SetAll(ctx context.Context, mask byte) (string, error) {
	cmdID, err := s.run(ctx, relay.CmdSetAll, mask, 0, func() error {
		return s.client.SetAll(mask)
	})
	if err == nil {
		s.putCache(ctx, mask, relay.CmdSetAll)
	} else {
		s.dropCacheIfUnknown(ctx, err)
	}
	return cmdID, err
}

// Classify 错误分类
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrBreakerOpen):
		return ResultRejected
	}
	if _, ok := relayclient.IsDeviceError(err); ok {
		return ResultDeviceError
	}
	if relayclient.IsProtocolError(err) {
		return ResultProtocolError
	}
	return ResultTransportError
}

func (s *RelayService) run(ctx context.Context, cmd relay.Command, arg1, arg2 byte, fn func() error) (string, error) {
	cmdID := uuid.New().String()
	log := s.logger.With(
		zap.String("cmd_id", cmdID),
		zap.String("cmd", cmd.String()),
		zap.String("device", s.client.Addr()),
	)

	start := time.Now()
	var err error
	if s.breaker != nil {
		err = s.breaker.Allow()
	}
	if err == nil {
		err = fn()
	}
	elapsed := time.Since(start)
	result := Classify(err)

	if s.breaker != nil && result != ResultRejected {
		s.breaker.Record(result == ResultTransportError || result == ResultProtocolError)
	}
	if s.metrics != nil {
		s.metrics.ExchangeTotal.WithLabelValues(cmd.String(), result).Inc()
		if result != ResultRejected {
			s.metrics.ExchangeDuration.WithLabelValues(cmd.String()).Observe(elapsed.Seconds())
		}
	}

	switch result {
	case ResultOK:
		log.Debug("relay command ok", zap.Duration("elapsed", elapsed))
	case ResultDeviceError, ResultRejected:
		log.Warn("relay command refused", zap.String("result", result), zap.Error(err))
	default:
		log.Error("relay command failed", zap.String("result", result), zap.Duration("elapsed", elapsed), zap.Error(err))
	}

	if s.cmdLog != nil {
		entry := pg.CommandLog{
			ID:         cmdID,
			DeviceAddr: s.client.Addr(),
			Cmd:        cmd.String(),
			Arg1:       int(arg1),
			Arg2:       int(arg2),
			Result:     result,
			DurationMs: elapsed.Milliseconds(),
			CreatedAt:  start,
		}
		if err != nil {
			entry.ErrorMsg = err.Error()
		}
		if lerr := s.cmdLog.InsertCommand(ctx, entry); lerr != nil {
			log.Warn("insert command log failed", zap.Error(lerr))
		}
	}
	return cmdID, err
}

func (s *RelayService) putCache(ctx context.Context, mask byte, source relay.Command) {
	if s.cache == nil {
		return
	}
	err := s.cache.Put(ctx, redisstorage.CachedStatus{
		DeviceAddr: s.client.Addr(),
		Mask:       mask,
		Source:     source.String(),
	})
	if err != nil {
		s.logger.Warn("cache relay status failed", zap.String("device", s.client.Addr()), zap.Error(err))
	}
}

// patchCache 仅在已有缓存时按位更新，没有基准状态则不猜测
func (s *RelayService) patchCache(ctx context.Context, source relay.Command, cmdErr error, apply func(byte) byte) {
	if s.cache == nil {
		return
	}
	if cmdErr != nil {
		s.dropCacheIfUnknown(ctx, cmdErr)
		return
	}
	err := s.cache.Update(ctx, s.client.Addr(), source.String(), apply)
	if err != nil && !errors.Is(err, redisstorage.ErrStatusNotCached) {
		s.logger.Warn("patch cached relay status failed", zap.String("device", s.client.Addr()), zap.Error(err))
		s.invalidateCache(ctx)
	}
}

// dropCacheIfUnknown 写指令超时或应答无法解析时设备状态未知，删除缓存
func (s *RelayService) dropCacheIfUnknown(ctx context.Context, cmdErr error) {
	switch Classify(cmdErr) {
	case ResultTransportError, ResultProtocolError:
		s.invalidateCache(ctx)
	}
}

func (s *RelayService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.client.Addr()); err != nil {
		s.logger.Warn("invalidate cached relay status failed", zap.String("device", s.client.Addr()), zap.Error(err))
	}
}
