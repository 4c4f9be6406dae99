package health

import "sync/atomic"

// Readiness 进程生命周期就绪标记：启动完成前与排空期间均不就绪
type Readiness struct {
	started  atomic.Bool
	draining atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetStarted(v bool)  { r.started.Store(v) }
func (r *Readiness) SetDraining(v bool) { r.draining.Store(v) }

// Ready 已启动且未进入排空
func (r *Readiness) Ready() bool {
	return r.started.Load() && !r.draining.Load()
}
