package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/port/outbound"
)

const lockKeyPrefix = "paygate:lock:"

// ErrLockTimeout is returned when a lock could not be taken before the deadline.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockConfig tunes the distributed lock.
type LockConfig struct {
	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// Wait bounds how long Lock polls before giving up.
	Wait time.Duration
	// Poll is the delay between attempts.
	Poll time.Duration
}

// DefaultLockConfig returns the lock defaults.
func DefaultLockConfig() LockConfig {
	return LockConfig{TTL: 30 * time.Second, Wait: 10 * time.Second, Poll: 25 * time.Millisecond}
}

// referenceLocker implements outbound.ReferenceLockerPort with SET NX PX.
type referenceLocker struct {
	client redis.UniversalClient
	config LockConfig
	logger *zap.Logger
}

// NewReferenceLocker creates a Redis-backed reference locker.
func NewReferenceLocker(client redis.UniversalClient, cfg LockConfig, logger *zap.Logger) outbound.ReferenceLockerPort {
	def := DefaultLockConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	return &referenceLocker{client: client, config: cfg, logger: logger}
}

func (l *referenceLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := lockKeyPrefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.config.Wait)
	defer cancel()

	ticker := time.NewTicker(l.config.Poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.config.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(fullKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// release runs on its own context so a cancelled request still frees the key.
func (l *referenceLocker) release(fullKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to release lock", zap.String("key", fullKey), zap.Error(err))
	}
}

// Compile-time check
var _ outbound.ReferenceLockerPort = (*referenceLocker)(nil)
