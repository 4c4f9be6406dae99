package app

import (
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg *cfgpkg.Config, log *zap.Logger, metricsHandler http.Handler, readyFn func() bool, routes ...httpserver.RouteRegistrar) *httpserver.Server {
	return httpserver.New(cfg.HTTP, log.Named("http"), cfg.Metrics.Path, metricsHandler, readyFn, routes...)
}
