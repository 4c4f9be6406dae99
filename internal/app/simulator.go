package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/metrics"
	"github.com/taoyao-code/relayctl/internal/simulator"
	"github.com/taoyao-code/relayctl/internal/tcpserver"
)

// StartSimulator 启动内置模拟器；未启用时返回 nil, nil
func StartSimulator(cfg cfgpkg.SimulatorConfig, log *zap.Logger, appm *metrics.AppMetrics) (*tcpserver.Server, error) {
	if !cfg.Enable {
		return nil, nil
	}
	srv, board := simulator.NewServer(cfg, log, appm)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	log.Info("simulator started",
		zap.String("addr", srv.Addr().String()),
		zap.Int("relays", board.RelayCount()),
		zap.Int("max_connections", srv.MaxConnections()))
	return srv, nil
}
