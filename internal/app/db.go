package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	pgstorage "github.com/taoyao-code/relayctl/internal/storage/pg"
)

// ConnectCommandLog 连接指令日志库并建表；未启用时返回 nil, nil, nil
func ConnectCommandLog(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, *pgstorage.Repository, error) {
	if !cfg.Enabled {
		log.Info("database is disabled, command log off")
		return nil, nil, nil
	}
	pool, err := pgstorage.NewPool(ctx, cfg, log.Named("pgx"))
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	repo := &pgstorage.Repository{Pool: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("db schema: %w", err)
	}
	log.Info("command log ready", zap.String("dsn", MaskDSN(cfg.DSN)))
	return pool, repo, nil
}
