package simulator

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/metrics"
	"github.com/taoyao-code/relayctl/internal/protocol/relay"
	"github.com/taoyao-code/relayctl/internal/tcpserver"
)

// NewServer 组装模拟器：内存继电器板 + 短连接 TCP 服务。m 可为 nil
func NewServer(cfg cfgpkg.SimulatorConfig, logger *zap.Logger, m *metrics.AppMetrics) (*tcpserver.Server, *Board) {
	if logger == nil {
		logger = zap.NewNop()
	}
	board := NewBoard(cfg.RelayCount, byte(cfg.InitialMask), logger.Named("board"))
	srv := tcpserver.New(cfg, board.Handle, logger.Named("simulator"))

	if m != nil {
		board.SetFrameHook(func(cmd relay.Command) {
			m.SimFramesTotal.WithLabelValues(cmd.String()).Inc()
		})
		srv.SetMetricsCallbacks(
			func() { m.SimAccepted.Inc() },
			func(n int) { m.SimBytesReceived.Add(float64(n)) },
		)
	}
	return srv, board
}
