package simulator

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/relayctl/internal/protocol/relay"
)

// Board 内存中的继电器板，行为与设备固件一致
type Board struct {
	mu      sync.Mutex
	count   int
	mask    byte
	logger  *zap.Logger
	onFrame func(cmd relay.Command)
}

// NewBoard 创建 count 路（1..8）继电器板，initial 为初始位图
func NewBoard(count int, initial byte, logger *zap.Logger) *Board {
	if count < 1 || count > relay.MaxRelays {
		count = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Board{count: count, logger: logger}
	b.mask = initial & b.validBits()
	return b
}

// SetFrameHook 每处理一帧回调一次（指标）
func (b *Board) SetFrameHook(h func(cmd relay.Command)) { b.onFrame = h }

func (b *Board) RelayCount() int { return b.count }

// Mask 当前状态位图
func (b *Board) Mask() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mask
}

func (b *Board) validBits() byte {
	return byte((1 << uint(b.count)) - 1)
}

// Handle 处理一帧请求并返回应答；请求不足 4 字节时不应答（ok=false）
func (b *Board) Handle(raw []byte) (resp []byte, ok bool) {
	req, err := relay.ParseRequest(raw)
	if errors.Is(err, relay.ErrShortRequest) {
		b.logger.Warn("short request", zap.Int("len", len(raw)))
		return nil, false
	}
	if err != nil {
		b.logger.Warn("invalid magic byte", zap.Binary("raw", raw))
		return relay.ErrorResponse(relay.ErrCodeBadMagic), true
	}
	if b.onFrame != nil {
		b.onFrame(req.Cmd)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch req.Cmd {
	case relay.CmdPing:
		b.logger.Debug("ping")
		return relay.PongResponse(), true

	case relay.CmdGetStatus:
		b.logger.Debug("get status", zap.Uint8("mask", b.mask))
		return relay.StatusResponse(b.mask), true

	case relay.CmdSetRelay:
		if int(req.Arg1) >= b.count {
			return relay.ErrorResponse(relay.ErrCodeInvalidRelay), true
		}
		b.set(int(req.Arg1), req.Arg2 != 0)
		b.logger.Info("set relay", zap.Uint8("relay", req.Arg1), zap.Bool("on", req.Arg2 != 0))
		return relay.OKResponse(), true

	case relay.CmdToggleRelay:
		if int(req.Arg1) >= b.count {
			return relay.ErrorResponse(relay.ErrCodeInvalidRelay), true
		}
		on := !relay.IsOn(b.mask, int(req.Arg1))
		b.set(int(req.Arg1), on)
		b.logger.Info("toggle relay", zap.Uint8("relay", req.Arg1), zap.Bool("on", on))
		return relay.OKResponse(), true

	case relay.CmdSetAll:
		b.mask = req.Arg1 & b.validBits()
		b.logger.Info("set all", zap.Uint8("mask", b.mask))
		return relay.OKResponse(), true

	default:
		b.logger.Warn("unknown command", zap.Stringer("cmd", req.Cmd))
		return relay.ErrorResponse(relay.ErrCodeUnknownCommand), true
	}
}

func (b *Board) set(id int, on bool) {
	if on {
		b.mask |= 1 << uint(id)
	} else {
		b.mask &^= 1 << uint(id)
	}
}
