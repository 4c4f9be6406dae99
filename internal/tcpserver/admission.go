package tcpserver

import (
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var (
	ErrTooManyConnections = errors.New("connection limit exceeded")
	ErrRateLimited        = errors.New("accept rate limited")
)

// admission 新连接准入：并发上限（信号量）+ 建连速率（令牌桶）
type admission struct {
	sem      chan struct{} // nil 表示不限并发
	limiter  *rate.Limiter // nil 表示不限速率
	active   atomic.Int64
	rejected atomic.Int64
}

func newAdmission(maxConn, ratePerSec, burst int) *admission {
	a := &admission{}
	if maxConn > 0 {
		a.sem = make(chan struct{}, maxConn)
	}
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = ratePerSec * 2
		}
		a.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return a
}

// acquire 非阻塞获取许可，失败时连接应立即关闭
func (a *admission) acquire() error {
	if a.limiter != nil && !a.limiter.Allow() {
		a.rejected.Add(1)
		return ErrRateLimited
	}
	if a.sem != nil {
		select {
		case a.sem <- struct{}{}:
		default:
			a.rejected.Add(1)
			return ErrTooManyConnections
		}
	}
	a.active.Add(1)
	return nil
}

func (a *admission) release() {
	a.active.Add(-1)
	if a.sem != nil {
		<-a.sem
	}
}

func (a *admission) maxConnections() int {
	if a.sem == nil {
		return 0
	}
	return cap(a.sem)
}
