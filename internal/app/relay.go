package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/metrics"
	"github.com/taoyao-code/relayctl/internal/relayclient"
	"github.com/taoyao-code/relayctl/internal/service"
)

// NewRelayService 组装网关服务：客户端 + 熔断 + 可选缓存/指令日志
func NewRelayService(cfg *cfgpkg.Config, log *zap.Logger, appm *metrics.AppMetrics, cache service.StatusCache, cmdLog service.CommandLogger) (*relayclient.Client, *service.RelayService) {
	client := relayclient.New(cfg.Relay.Addr, relayclient.WithTimeout(cfg.Relay.Timeout))

	opts := []service.Option{
		service.WithLogger(log.Named("relay")),
		service.WithMetrics(appm),
		service.WithBreaker(service.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Timeout)),
	}
	if cache != nil {
		opts = append(opts, service.WithStatusCache(cache))
	}
	if cmdLog != nil {
		opts = append(opts, service.WithCommandLog(cmdLog))
	}
	return client, service.NewRelayService(client, cfg.Relay.RelayCount, opts...)
}
