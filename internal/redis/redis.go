package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/typephoon/backend/internal/config"
)

// Connect establishes a connection to Redis
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr(),
		DB:   cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
