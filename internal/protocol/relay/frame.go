package relay

import "fmt"

// 帧布局：
// 请求 magic[1] | cmd[1] | arg1[1] | arg2[1]，固定 4 字节
// 响应 magic[1] | kind[1] | payload[..]，payload[1]（绝对下标 3）为状态位图或设备错误码
const Magic byte = 0xA5

const (
	RequestLen     = 4
	MaxResponseLen = 64 // 单次读取上限

	// 响应中状态位图/错误码的绝对下标
	PayloadIndex = 3
)

// DefaultPort 继电器板默认 TCP 端口
const DefaultPort = 3736

// Command 请求命令字
type Command byte

const (
	CmdPing        Command = 0x01
	CmdGetStatus   Command = 0x02
	CmdSetRelay    Command = 0x03
	CmdToggleRelay Command = 0x04
	CmdSetAll      Command = 0x05
)

// Commands 全部已定义命令（按命令字顺序）
var Commands = []Command{CmdPing, CmdGetStatus, CmdSetRelay, CmdToggleRelay, CmdSetAll}

func (c Command) String() string {
	switch c {
	case CmdPing:
		return "ping"
	case CmdGetStatus:
		return "get_status"
	case CmdSetRelay:
		return "set_relay"
	case CmdToggleRelay:
		return "toggle_relay"
	case CmdSetAll:
		return "set_all"
	default:
		return fmt.Sprintf("cmd_0x%02X", byte(c))
	}
}

// ResponseKind 响应类型
type ResponseKind byte

const (
	KindOk     ResponseKind = 0x00
	KindErr    ResponseKind = 0x01
	KindStatus ResponseKind = 0x02
	KindPong   ResponseKind = 0x03
)

func (k ResponseKind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindErr:
		return "err"
	case KindStatus:
		return "status"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("kind_0x%02X", byte(k))
	}
}

// Request 一帧下行请求
type Request struct {
	Cmd  Command
	Arg1 byte // 继电器编号，SetAll 时为位图
	Arg2 byte // 取值：0=关 1=开
}

// Bytes 返回请求的线上编码
func (r Request) Bytes() []byte { return EncodeRequest(r.Cmd, r.Arg1, r.Arg2) }

// 设备侧错误码（固件实际使用的取值）
const (
	ErrCodeInvalidRelay   byte = 0x01
	ErrCodeUnknownCommand byte = 0x02
	ErrCodeBadMagic       byte = 0xFF // 同时作为设备未给出错误码时的占位值
)

// DescribeErrorCode 返回设备错误码的简短说明，未知返回空串
func DescribeErrorCode(code byte) string {
	switch code {
	case ErrCodeInvalidRelay:
		return "invalid relay"
	case ErrCodeUnknownCommand:
		return "unknown command"
	case ErrCodeBadMagic:
		return "bad magic or unspecified"
	default:
		return ""
	}
}
