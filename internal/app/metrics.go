package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标；metrics.enable=false 时不暴露 HTTP 处理器
func NewMetrics(cfg cfgpkg.MetricsConfig) (*prometheus.Registry, *metrics.AppMetrics, http.Handler) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	if !cfg.Enable {
		return reg, appm, nil
	}
	return reg, appm, metrics.Handler(reg)
}
