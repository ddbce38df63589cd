package scheduler

import (
	"context" // Request scoped contexts
	"time"    // Durations and timeouts

	"github.com/google/uuid"       // Lock tokens
	"github.com/redis/go-redis/v9" // Redis client
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker guards a sweep against other instances running it at the same time
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLock is a single key SET NX lock with an expiry, so a crashed holder
// cannot block sweeps for longer than ttl.
type RedisLock struct {
	rdb   *redis.Client // Redis client
	key   string        // Lock key
	ttl   time.Duration // Lock expiry
	token string        // Identifies this instance as the holder
}

// NewRedisLock creates a lock on key. Each instance gets its own token.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire reports whether this instance now holds the lock
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release drops the lock if this instance still holds it
func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
