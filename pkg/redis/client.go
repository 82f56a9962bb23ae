package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/parser06/first-responder-risk/pkg/config"
)

// NewClient 创建 Redis 客户端并验证连通性
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
