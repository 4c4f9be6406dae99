package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	ExchangeTotal    *prometheus.CounterVec   // labels: cmd, result=ok|device_error|protocol_error|transport_error|rejected
	ExchangeDuration *prometheus.HistogramVec // labels: cmd
	SimAccepted      prometheus.Counter
	SimBytesReceived prometheus.Counter
	SimFramesTotal   *prometheus.CounterVec // labels: cmd
	BreakerState     prometheus.Gauge       // 0=closed 1=open 2=half_open
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		ExchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_exchange_total",
			Help: "Relay board request/response exchanges by command and result.",
		}, []string{"cmd", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_exchange_duration_seconds",
			Help:    "Relay board exchange latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"cmd"}),
		SimAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_accept_total",
			Help: "Total accepted simulator TCP connections.",
		}),
		SimBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_bytes_received_total",
			Help: "Total bytes received by the simulator.",
		}),
		SimFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_frames_total",
			Help: "Simulator handled request frames by command.",
		}, []string{"cmd"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Gateway circuit breaker state (0=closed, 1=open, 2=half_open).",
		}),
	}
	reg.MustRegister(m.ExchangeTotal, m.ExchangeDuration, m.SimAccepted, m.SimBytesReceived, m.SimFramesTotal, m.BreakerState)
	return m
}
