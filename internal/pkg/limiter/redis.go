package limiter

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// acquireScript 原子的 check-and-increment：计数未达容量时 +1，
// 首次创建 key 时设置 TTL。返回 1 表示拿到槽位。
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local capacity = tonumber(ARGV[1])
if current < capacity then
    local value = redis.call('INCR', KEYS[1])
    if value == 1 then
        redis.call('EXPIRE', KEYS[1], ARGV[2])
    end
    return 1
end
return 0
`)

// releaseScript 计数 -1，但不允许转负（TTL 过期后晚到的 Release 不产生负数）
var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > 0 then
    redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisLimiter 跨进程共享的 TTL 计数器信号量。
//
// TTL 是崩溃恢复阀门：持有者异常退出没有 Release 时，计数随 key 过期归零，
// 容量在 TTL 窗口后自动恢复，而不是永久泄漏。代价是严格上限退化为
// “崩溃窗口内至多 N+ε”：TTL 只在 acquire 时设置、不随调用续期，
// 一次超长的供应商调用可能在仍然在途时就被计数器遗忘。
type RedisLimiter struct {
	rdb      *redis.Client
	key      string
	capacity int
	ttl      time.Duration
	poll     time.Duration
}

func NewRedisLimiter(rdb *redis.Client, providerName string, capacity int, ttl time.Duration) *RedisLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &RedisLimiter{
		rdb:      rdb,
		key:      "limiter:" + providerName,
		capacity: capacity,
		ttl:      ttl,
		poll:     100 * time.Millisecond,
	}
}

func (l *RedisLimiter) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ttlSeconds := int(l.ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	for {
		ok, err := acquireScript.Run(ctx, l.rdb, []string{l.key}, l.capacity, ttlSeconds).Int()
		if err != nil {
			return err
		}
		if ok == 1 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrAcquireTimeout
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *RedisLimiter) Release(ctx context.Context) {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}).Err(); err != nil {
		log.Printf("Warning: failed to release limiter slot %s: %v", l.key, err)
	}
}
