package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// LocalProvider 是单进程内的锁实现，用于单机部署和测试。
// 每个键对应一个容量为 1 的 channel。
type LocalProvider struct {
	slots *xsync.MapOf[string, chan struct{}]
}

// NewLocalProvider 创建进程内锁服务
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{slots: xsync.NewMapOf[string, chan struct{}]()}
}

// Acquire 阻塞直到取得锁、超过 wait 或 ctx 被取消
func (p *LocalProvider) Acquire(ctx context.Context, key string, lease, wait time.Duration) (Lease, error) {
	slot, _ := p.slots.LoadOrCompute(key, func() chan struct{} {
		return make(chan struct{}, 1)
	})

	select {
	case slot <- struct{}{}:
	default:
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case slot <- struct{}{}:
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l := &localLease{key: key, slot: slot}
	l.expiry = time.AfterFunc(lease, func() { l.free() })
	return l, nil
}

type localLease struct {
	key      string
	slot     chan struct{}
	released atomic.Bool
	expiry   *time.Timer
}

// free 只会成功一次：要么由 Release 调用，要么由租约到期触发
func (l *localLease) free() bool {
	if !l.released.CompareAndSwap(false, true) {
		return false
	}
	<-l.slot
	return true
}

func (l *localLease) Release(context.Context) error {
	l.expiry.Stop()
	if !l.free() {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}
