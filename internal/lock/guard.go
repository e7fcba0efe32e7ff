package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/fedivote/internal/platform/metrics"
	"go.uber.org/zap"
)

const (
	scopeContent = "content"
	scopeAuthor  = "author"

	releaseTimeout = 2 * time.Second
)

type contentScopeKey struct{}

// AuthorKey 返回作者锁的键，格式为 user:{author_id}
func AuthorKey(authorID uint) string {
	return fmt.Sprintf("user:%d", authorID)
}

// Guard 实现两级有序锁：先内容锁，再在其内部短暂持有作者锁。
type Guard struct {
	provider Provider
	lease    time.Duration
	wait     time.Duration
	logger   *zap.Logger
}

// NewGuard 创建锁守卫
func NewGuard(provider Provider, lease, wait time.Duration, logger *zap.Logger) *Guard {
	return &Guard{
		provider: provider,
		lease:    lease,
		wait:     wait,
		logger:   logger.Named("lock"),
	}
}

// WithContent 在持有内容锁期间执行 fn，传给 fn 的 ctx 标记了当前内容锁
func (g *Guard) WithContent(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := g.acquire(ctx, scopeContent, key)
	if err != nil {
		return err
	}
	defer g.release(ctx, lease, scopeContent, key)

	return fn(context.WithValue(ctx, contentScopeKey{}, key))
}

// WithAuthor 在持有作者锁期间执行 fn；ctx 必须来自 WithContent。
func (g *Guard) WithAuthor(ctx context.Context, authorID uint, fn func() error) error {
	if _, ok := ctx.Value(contentScopeKey{}).(string); !ok {
		return ErrLockOrder
	}

	key := AuthorKey(authorID)
	lease, err := g.acquire(ctx, scopeAuthor, key)
	if err != nil {
		return err
	}
	defer g.release(ctx, lease, scopeAuthor, key)

	return fn()
}

func (g *Guard) acquire(ctx context.Context, scope, key string) (Lease, error) {
	start := time.Now()
	lease, err := g.provider.Acquire(ctx, key, g.lease, g.wait)
	metrics.LockWaitSeconds.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			metrics.LockTimeoutsTotal.WithLabelValues(scope).Inc()
		}
		return nil, err
	}
	return lease, nil
}

// release 不受调用方 ctx 取消的影响，保证锁一定被归还
func (g *Guard) release(ctx context.Context, lease Lease, scope, key string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := lease.Release(releaseCtx); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			metrics.LockLeaseLostTotal.WithLabelValues(scope).Inc()
		}
		g.logger.Warn("释放锁失败", zap.String("key", key), zap.Error(err))
	}
}
