package limiter

import (
	"context"
	"time"
)

// LocalLimiter 进程内信号量，只在单 worker 进程部署下保证上限
type LocalLimiter struct {
	slots chan struct{}
}

func NewLocalLimiter(capacity int) *LocalLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &LocalLimiter{slots: make(chan struct{}, capacity)}
}

func (l *LocalLimiter) Acquire(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrAcquireTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalLimiter) Release(ctx context.Context) {
	select {
	case <-l.slots:
	default:
		// 多余的 Release 不使计数转负
	}
}
