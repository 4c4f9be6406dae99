package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/health"
	redisstorage "github.com/taoyao-code/relayctl/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil, nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, status cache off")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Duration("status_ttl", cfg.StatusTTL))
	return client, nil
}

// NewStatusCache 基于 Redis 客户端的状态缓存
func NewStatusCache(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.StatusCache {
	return redisstorage.NewStatusCache(client, cfg.StatusTTL)
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
