package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sftpush/pkg/logger"
)

const keyPrefix = "sftpush:lock:"

var (
	ErrLockHeld = errors.New("lock is held by another worker")
	// ErrLockLost means the lock expired or was taken over before Release.
	ErrLockLost = errors.New("lock no longer owned")
)

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Lock struct {
	Key   string
	token string
}

// RedisLocker serialises uploads to the same remote destination across workers.
type RedisLocker struct {
	client redisClient
	logger *logger.Logger
}

func NewRedisLocker(client redisClient, log *logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.NewDefault()
	}
	return &RedisLocker{client: client, logger: log}
}

// LockKey names the lock guarding destination on host.
func LockKey(host, destination string) string {
	h := xxhash.New()
	_, _ = h.WriteString(host)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(destination)
	return fmt.Sprintf("%s%016x", keyPrefix, h.Sum64())
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	l.logger.Debug("lock acquired", map[string]any{"lock_key": key, "ttl": ttl.String()})
	return &Lock{Key: key, token: token}, nil
}

func (l *RedisLocker) Release(ctx context.Context, lock *Lock) error {
	deleted, err := l.client.Eval(ctx, releaseScript, []string{lock.Key}, lock.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lock.Key, err)
	}
	if deleted == 0 {
		l.logger.Warn("lock expired before release", map[string]any{"lock_key": lock.Key})
		return fmt.Errorf("%w: %s", ErrLockLost, lock.Key)
	}

	l.logger.Debug("lock released", map[string]any{"lock_key": lock.Key})
	return nil
}
