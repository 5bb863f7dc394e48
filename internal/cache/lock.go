package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"CareLink/storage/redis"
)

const lockPrefix = "lock"

// 只有持有 token 的一方才能释放锁，避免 TTL 过期后误删别人的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock 基于 SET NX PX 的互斥锁，用于避免 cron 与 scheduler 同时跑一轮升级
type RunLock struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRunLock(client goredis.Cmdable, name string, ttl time.Duration) *RunLock {
	return &RunLock{
		client: client,
		key:    redis.Key(lockPrefix, name),
		ttl:    ttl,
	}
}

// Acquire 成功时返回释放用的 token；锁被占用时 ok=false
func (l *RunLock) Acquire(ctx context.Context) (token string, ok bool, err error) {
	token = uuid.NewString()

	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RunLock) Release(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}

func (l *RunLock) Key() string {
	return l.key
}
