package relay

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic   = errors.New("invalid response magic byte")
	ErrShortRequest   = errors.New("short request")
	ErrUnknownCommand = errors.New("unknown command")
)

// UnknownResponseError 响应类型字节不在已定义集合内
type UnknownResponseError struct {
	Code byte
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("unknown response type: 0x%02X", e.Code)
}

// ValidateEnvelope 校验响应外层：非空且首字节为 magic，须先于其它字段解析
func ValidateEnvelope(raw []byte) error {
	if len(raw) == 0 || raw[0] != Magic {
		return ErrInvalidMagic
	}
	return nil
}

// ParseResponseKind 将响应类型字节映射为 ResponseKind，其余取值一律拒绝
func ParseResponseKind(b byte) (ResponseKind, error) {
	switch ResponseKind(b) {
	case KindOk, KindErr, KindStatus, KindPong:
		return ResponseKind(b), nil
	}
	return 0, &UnknownResponseError{Code: b}
}

// ParseCommand 将命令字节映射为 Command
func ParseCommand(b byte) (Command, error) {
	switch Command(b) {
	case CmdPing, CmdGetStatus, CmdSetRelay, CmdToggleRelay, CmdSetAll:
		return Command(b), nil
	}
	return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, b)
}

// ParseRequest 解析设备侧收到的请求帧（模拟器使用）。
// 超出 4 字节的尾部忽略；命令字不做校验，由调用方决定如何应答未知命令。
func ParseRequest(raw []byte) (Request, error) {
	if len(raw) < RequestLen {
		return Request{}, ErrShortRequest
	}
	if raw[0] != Magic {
		return Request{}, ErrInvalidMagic
	}
	return Request{Cmd: Command(raw[1]), Arg1: raw[2], Arg2: raw[3]}, nil
}
