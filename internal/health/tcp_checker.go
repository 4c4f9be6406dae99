package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/relayctl/internal/tcpserver"
)

// SimulatorChecker 内置模拟器的连接占用
type SimulatorChecker struct {
	server *tcpserver.Server
}

func NewSimulatorChecker(server *tcpserver.Server) *SimulatorChecker {
	return &SimulatorChecker{server: server}
}

func (c *SimulatorChecker) Name() string { return "simulator" }

func (c *SimulatorChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	stats := c.server.Stats()
	details := map[string]interface{}{
		"active_connections": stats.ActiveConnections,
		"rejected_total":     stats.RejectedTotal,
	}
	if c.server.Addr() == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "not listening", Details: details, Latency: time.Since(start)}
	}
	details["addr"] = c.server.Addr().String()

	if stats.MaxConnections == 0 {
		return CheckResult{Status: StatusHealthy, Message: "no limiting enabled", Details: details, Latency: time.Since(start)}
	}

	utilization := float64(stats.ActiveConnections) / float64(stats.MaxConnections)
	details["max_connections"] = stats.MaxConnections
	details["utilization"] = fmt.Sprintf("%.1f%%", utilization*100)

	status, message := StatusHealthy, "ok"
	switch {
	case utilization > 0.95:
		status, message = StatusUnhealthy, "connection limit near exhausted"
	case utilization > 0.8:
		status, message = StatusDegraded, "high connection usage"
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
