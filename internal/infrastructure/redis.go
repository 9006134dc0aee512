package infrastructure

import (
	"github.com/arcrelay/geminiproxy/internal/config"

	"github.com/redis/go-redis/v9"
)

// InitRedis constructs the shared Redis client backing the account pool's
// affinity cache and the quota cache.
func InitRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
