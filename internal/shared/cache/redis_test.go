package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate/server/internal/infra/config"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient(&config.RedisConfig{Address: mr.Addr()})
		require.NoError(t, err)
		defer func() { _ = Close(client) }()

		require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewRedisClient(&config.RedisConfig{Address: addr})
		assert.ErrorContains(t, err, "ping redis")
	})
}

func TestOptions(t *testing.T) {
	single := Options(&config.RedisConfig{Address: "localhost:6379", DB: 2})
	assert.Equal(t, []string{"localhost:6379"}, single.Addrs)
	assert.Equal(t, 2, single.DB)

	cluster := Options(&config.RedisConfig{Address: "r1:6379, r2:6379,"})
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cluster.Addrs)
}
