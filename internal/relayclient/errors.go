package relayclient

import (
	"errors"
	"fmt"
	"net"

	"github.com/taoyao-code/relayctl/internal/protocol/relay"
)

var (
	ErrInvalidPingResponse   = errors.New("invalid ping response")
	ErrInvalidStatusResponse = errors.New("invalid status response")
	ErrInvalidResponse       = errors.New("invalid response")
)

// NoErrorCode 设备返回 Err 但未携带错误码时的占位值
const NoErrorCode byte = 0xFF

// DeviceError 设备明确拒绝了命令（响应类型为 Err）
type DeviceError struct {
	Cmd  relay.Command
	Code byte
}

func (e *DeviceError) Error() string {
	if desc := relay.DescribeErrorCode(e.Code); desc != "" {
		return fmt.Sprintf("device error: 0x%02X (%s)", e.Code, desc)
	}
	return fmt.Sprintf("device error: 0x%02X", e.Code)
}

// IsDeviceError 判断 err 是否为设备侧错误并返回之
func IsDeviceError(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsTimeout 判断是否为连接/读写超时
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsProtocolError 外层、类型或形状错误：设备有应答但内容不可解释
func IsProtocolError(err error) bool {
	var unknown *relay.UnknownResponseError
	switch {
	case errors.Is(err, relay.ErrInvalidMagic),
		errors.Is(err, ErrInvalidPingResponse),
		errors.Is(err, ErrInvalidStatusResponse),
		errors.Is(err, ErrInvalidResponse),
		errors.As(err, &unknown):
		return true
	}
	return false
}
