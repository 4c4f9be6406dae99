package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/relayctl/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/logging"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动网关，阻塞至退出信号
	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Error("gateway exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
