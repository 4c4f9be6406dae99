package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/relayctl/internal/health"
	"github.com/taoyao-code/relayctl/internal/relayclient"
	"github.com/taoyao-code/relayctl/internal/service"
	"github.com/taoyao-code/relayctl/internal/tcpserver"
)

// NewHealthAggregator 以设备探活为基础检查器
func NewHealthAggregator(client *relayclient.Client, svc *service.RelayService) *health.Aggregator {
	return health.NewAggregator(
		health.NewDeviceChecker(client, func() string { return svc.BreakerState().String() }),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddSimulatorChecker 内置模拟器启动后加入检查
func AddSimulatorChecker(aggregator *health.Aggregator, srv *tcpserver.Server) {
	aggregator.AddChecker(health.NewSimulatorChecker(srv))
}
