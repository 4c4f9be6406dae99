package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/relayctl/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
)

// RegisterRelayRoutes 注册继电器路由，查询接口免认证，写接口按配置认证
func RegisterRelayRoutes(r *gin.Engine, h *RelayHandler, authCfg cfgpkg.AuthConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	api.Use(middleware.CORS())
	// 预检请求没有对应业务路由，需显式注册才能进入 CORS 中间件
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api.GET("/relays", h.GetStatus)
	api.GET("/relays/cached", h.GetCachedStatus)
	api.GET("/commands", h.ListCommands)

	write := api.Group("")
	write.Use(middleware.APIKeyAuth(authCfg, logger))
	if authCfg.Enabled {
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	write.POST("/ping", h.Ping)
	write.PUT("/relays", h.SetAll)
	write.PUT("/relays/:id", h.SetRelay)
	write.POST("/relays/:id/toggle", h.ToggleRelay)

	logger.Info("relay routes registered", zap.Int("endpoints", 7))
}
