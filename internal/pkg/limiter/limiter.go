package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/grade_go_server/config"
)

// ErrAcquireTimeout 在超时时间内未能拿到槽位
var ErrAcquireTimeout = errors.New("timed out waiting for a provider slot")

// Limiter 单个供应商的并发上限。Acquire 阻塞直到拿到槽位或超时，
// 超时返回 ErrAcquireTimeout；每次成功的 Acquire 必须配对一次 Release。
type Limiter interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release(ctx context.Context)
}

// 类别默认并发：云端按账号限流可以多路并发，
// 本地模型服务器一般一次只跑一个模型
const (
	defaultCloudCapacity = 5
	defaultLocalCapacity = 1
)

// classFunc 由 provider 注册表提供的类别查询
type classFunc func(providerName string) string

// Registry 供应商名 → Limiter 的进程级注册表。
// 每个供应商的容量在首次使用时解析一次并缓存，此后不再变化；
// 调整容量需要重启进程或显式 Reset。
type Registry struct {
	cfg       config.LimiterConfig
	classOf   classFunc
	rdb       *redis.Client // 为 nil 时使用进程内信号量
	overrides map[string]int

	mu       sync.Mutex
	limiters map[string]Limiter
}

// NewRegistry 构建注册表。rdb 为 nil 或 mode 为 local 时使用进程内信号量，
// 否则使用跨进程的 Redis 计数器。
func NewRegistry(cfg config.LimiterConfig, classOf func(string) string, rdb *redis.Client) *Registry {
	overrides := make(map[string]int)
	if cfg.OverridesJSON != "" {
		if err := json.Unmarshal([]byte(cfg.OverridesJSON), &overrides); err != nil {
			log.Printf("Warning: invalid limiter overrides_json, ignored: %v", err)
			overrides = make(map[string]int)
		}
	}
	if cfg.Mode == "local" {
		rdb = nil
	}
	return &Registry{
		cfg:       cfg,
		classOf:   classOf,
		rdb:       rdb,
		overrides: overrides,
		limiters:  make(map[string]Limiter),
	}
}

// Get 返回指定供应商的 Limiter，首次调用时创建
func (r *Registry) Get(providerName string) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[providerName]; ok {
		return lim
	}

	capacity := r.resolveCapacity(providerName)
	var lim Limiter
	if r.rdb != nil {
		lim = NewRedisLimiter(r.rdb, providerName, capacity, r.slotTTL())
	} else {
		lim = NewLocalLimiter(capacity)
	}
	r.limiters[providerName] = lim
	return lim
}

// AcquireTimeout 统一的槽位等待上限
func (r *Registry) AcquireTimeout() time.Duration {
	if r.cfg.AcquireTimeoutSeconds > 0 {
		return time.Duration(r.cfg.AcquireTimeoutSeconds) * time.Second
	}
	return 10 * time.Minute
}

// Reset 清空已缓存的 Limiter，让容量在下次使用时重新解析
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = make(map[string]Limiter)
}

// resolveCapacity 容量解析顺序：
// providers 显式覆盖 > overrides_json > 供应商类别默认值
func (r *Registry) resolveCapacity(providerName string) int {
	if n, ok := r.cfg.Providers[providerName]; ok && n > 0 {
		return n
	}
	if n, ok := r.overrides[providerName]; ok && n > 0 {
		return n
	}
	if r.classOf != nil && r.classOf(providerName) == "local" {
		if r.cfg.LocalDefault > 0 {
			return r.cfg.LocalDefault
		}
		return defaultLocalCapacity
	}
	if r.cfg.CloudDefault > 0 {
		return r.cfg.CloudDefault
	}
	return defaultCloudCapacity
}

func (r *Registry) slotTTL() time.Duration {
	if r.cfg.SlotTTLSeconds > 0 {
		return time.Duration(r.cfg.SlotTTLSeconds) * time.Second
	}
	return 10 * time.Minute
}
