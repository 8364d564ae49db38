package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stemdeck/config"
	"stemdeck/logger"
)

// RedisClient is the shared Redis handle, nil when caching is disabled.
var RedisClient *redis.Client

// ConnectRedis opens the Redis connection and verifies it with a ping.
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		RedisClient = nil
		return fmt.Errorf("db: connect redis: %w", err)
	}

	logger.Info("redis connected",
		logger.String("host", cfg.RedisHost),
		logger.Int("db", cfg.RedisDB))
	return nil
}

// CloseRedis closes the Redis connection. Safe to call when Redis was
// never connected.
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}
