package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/relayctl/internal/api"
	"github.com/taoyao-code/relayctl/internal/app"
	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/health"
	"github.com/taoyao-code/relayctl/internal/service"
	"github.com/taoyao-code/relayctl/internal/tcpserver"
)

// Run 网关启动流程，阻塞直到收到 SIGINT/SIGTERM
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, cfg, log)
}

// RunContext 同 Run，由 ctx 控制退出
func RunContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting relay gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("device", cfg.Relay.Addr))

	// ========== 阶段1: 基础组件 ==========
	_, appm, metricsHandler := app.NewMetrics(cfg.Metrics)
	ready := health.New()

	// ========== 阶段2: 可选存储（失败直接返回）==========
	dbpool, repo, err := app.ConnectCommandLog(ctx, cfg.Database, log)
	if err != nil {
		log.Error("database initialization failed", zap.Error(err))
		return err
	}
	if dbpool != nil {
		defer dbpool.Close()
	}

	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	var cache service.StatusCache
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		cache = app.NewStatusCache(redisClient, cfg.Redis)
	}

	// ========== 阶段3: 业务服务 ==========
	var cmdLog service.CommandLogger
	var history api.CommandHistory
	if repo != nil {
		cmdLog, history = repo, repo
	}
	client, svc := app.NewRelayService(cfg, log, appm, cache, cmdLog)

	healthAgg := app.NewHealthAggregator(client, svc)
	app.AddRedisChecker(healthAgg, redisClient)
	if dbpool != nil {
		healthAgg.AddChecker(health.NewDatabaseChecker(dbpool))
	}

	// ========== 阶段4: 内置模拟器（可选）==========
	simSrv, err := app.StartSimulator(cfg.Simulator, log, appm)
	if err != nil {
		log.Error("simulator start failed", zap.Error(err))
		return err
	}
	if simSrv != nil {
		app.AddSimulatorChecker(healthAgg, simSrv)
	}

	// ========== 阶段5: HTTP ==========
	handler := api.NewRelayHandler(svc, history, log.Named("api"))
	httpSrv := app.NewHTTPServer(cfg, log, metricsHandler, ready.Ready, func(r *gin.Engine) {
		api.RegisterRelayRoutes(r, handler, cfg.HTTP.Auth, log)
		app.RegisterHealthRoutes(r, healthAgg)
	})

	errC := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()
	ready.SetStarted(true)
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段6: 等待退出 ==========
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err = <-errC:
		log.Error("http server error", zap.Error(err))
	}
	ready.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdown(shutdownCtx, log, httpSrv, simSrv)
	return err
}

func shutdown(ctx context.Context, log *zap.Logger, httpSrv interface{ Shutdown(context.Context) error }, simSrv *tcpserver.Server) {
	if e := httpSrv.Shutdown(ctx); e != nil {
		log.Warn("http shutdown", zap.Error(e))
	}
	log.Info("http server stopped")

	if simSrv != nil {
		if e := simSrv.Shutdown(ctx); e != nil {
			log.Warn("simulator shutdown", zap.Error(e))
		}
		log.Info("simulator stopped")
	}
	log.Info("shutdown complete")
}
