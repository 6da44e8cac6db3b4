package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paygate/server/internal/infra/config"
)

const pingTimeout = 5 * time.Second

// NewRedisClient connects to Redis and checks the connection. A comma
// separated address list selects a cluster client.
func NewRedisClient(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(Options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Options maps the config onto go-redis options.
func Options(cfg *config.RedisConfig) *redis.UniversalOptions {
	var addrs []string
	for _, addr := range strings.Split(cfg.Address, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return &redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Close closes the Redis client.
func Close(client redis.UniversalClient) error {
	return client.Close()
}
