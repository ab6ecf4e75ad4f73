package commissionsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCycleLockTTL = 15 * time.Second

var releaseCycleLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// RedisCycleLock is a SET NX lock released only by its owner.
type RedisCycleLock struct {
	client redis.Cmdable
}

func NewRedisCycleLock(client redis.Cmdable) *RedisCycleLock {
	return &RedisCycleLock{client: client}
}

func (l *RedisCycleLock) AcquireProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error) {
	if ttl <= 0 {
		ttl = defaultCycleLockTTL
	}

	acquired, err := l.client.SetNX(ctx, processingLockKey(key), owner, ttl).Result()
	if err != nil {
		return false, err
	}

	return acquired, nil
}

func (l *RedisCycleLock) ReleaseProcessingLock(ctx context.Context, key string, owner string) error {
	_, err := releaseCycleLockScript.Run(ctx, l.client, []string{processingLockKey(key)}, owner).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	return nil
}

func processingLockKey(key string) string {
	return fmt.Sprintf("%s:processing-lock", key)
}
