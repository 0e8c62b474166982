package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only when the stored token matches, so a
// holder whose TTL already expired cannot release someone else's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements KeyedLocker with SET NX PX on a shared Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed advisory locker.
func NewRedisLocker(client *redis.Client, prefix string, logger *zap.Logger) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{client: client, prefix: prefix, logger: logger}
}

// TryAcquire attempts to take the lock without blocking.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	fullKey := fmt.Sprintf("%s:%s", l.prefix, key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return false, nil, nil
	}

	release := func() {
		// Best effort: the TTL reclaims the lock if the release fails.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{fullKey}, token).Err(); err != nil {
			l.logger.Warn("lock_release_failed",
				zap.String("key", fullKey),
				zap.Error(err),
			)
		}
	}

	return true, release, nil
}

var _ KeyedLocker = (*RedisLocker)(nil)
