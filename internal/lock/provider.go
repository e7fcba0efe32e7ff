// Package lock 提供带租约的互斥锁，用于串行化同一内容上的投票。
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout 表示在等待时限内未能取得锁，调用方可以重试
	ErrTimeout = errors.New("lock: acquire timed out")
	// ErrUnavailable 表示锁服务本身不可用
	ErrUnavailable = errors.New("lock: provider unavailable")
	// ErrLeaseLost 表示释放时发现租约已过期或被他人持有
	ErrLeaseLost = errors.New("lock: lease lost before release")
	// ErrLockOrder 表示在内容锁之外申请作者锁
	ErrLockOrder = errors.New("lock: author lock requested outside a content lock")
)

// Lease 是一次成功的加锁，必须在所有退出路径上释放
type Lease interface {
	Release(ctx context.Context) error
}

// Provider 在集群范围内提供互斥。
// lease 是锁的最长持有时间，wait 是最长阻塞等待时间。
type Provider interface {
	Acquire(ctx context.Context, key string, lease, wait time.Duration) (Lease, error)
}
