package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript 只释放自己持有的租约
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// renewScript 只续期自己持有的租约
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Manager 任务粒度的短租约。队列是 at-least-once 投递，
// 同一任务的两次并发投递靠租约互斥，TTL 保证持有者崩溃后租约自动回收。
type Manager struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewManager(rdb *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Manager{rdb: rdb, ttl: ttl}
}

// Lease 一次成功获取的租约句柄
type Lease struct {
	m     *Manager
	key   string
	token string
}

// Acquire 尝试获取任务租约；已被其他 worker 持有时返回 (nil, false)
func (m *Manager) Acquire(ctx context.Context, jobID int64) (*Lease, bool, error) {
	key := fmt.Sprintf("job_lease:%d", jobID)
	token := uuid.NewString()

	ok, err := m.rdb.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{m: m, key: key, token: token}, true, nil
}

// Renew 续期，长任务在处理每份提交之间调用
func (l *Lease) Renew(ctx context.Context) error {
	return renewScript.Run(ctx, l.m.rdb, []string{l.key}, l.token, l.m.ttl.Milliseconds()).Err()
}

// Release 释放租约；token 不匹配（已过期被他人接管）时不动
func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.m.rdb, []string{l.key}, l.token).Err()
}
