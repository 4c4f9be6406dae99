package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger 继电器板探活，*relayclient.Client 实现
type Pinger interface {
	Addr() string
	Ping() error
}

// DeviceChecker 继电器板可达性。设备离线时网关仍可应答，只降级
type DeviceChecker struct {
	pinger       Pinger
	breakerState func() string
}

// NewDeviceChecker breakerState 可为 nil
func NewDeviceChecker(p Pinger, breakerState func() string) *DeviceChecker {
	return &DeviceChecker{pinger: p, breakerState: breakerState}
}

func (c *DeviceChecker) Name() string { return "device" }

// Check 直接 Ping，不经过熔断与指令日志
func (c *DeviceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]interface{}{"addr": c.pinger.Addr()}
	if c.breakerState != nil {
		details["breaker_state"] = c.breakerState()
	}

	errC := make(chan error, 1)
	go func() { errC <- c.pinger.Ping() }()

	var err error
	select {
	case err = <-errC:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Details: details,
			Latency: time.Since(start),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Details: details, Latency: time.Since(start)}
}
