package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SlpAus/fedivote/internal/lock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisProvider(t *testing.T) (*lock.RedisProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return lock.NewRedisProvider(rdb), mr
}

// providerContract 覆盖所有实现都必须满足的行为
func providerContract(t *testing.T, p lock.Provider) {
	ctx := t.Context()

	first, err := p.Acquire(ctx, "content:post:1", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "content:post:1", time.Minute, 20*time.Millisecond)
	assert.ErrorIs(t, err, lock.ErrTimeout)

	other, err := p.Acquire(ctx, "content:post:2", time.Minute, 10*time.Millisecond)
	require.NoError(t, err, "different keys do not contend")
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))

	again, err := p.Acquire(ctx, "content:post:1", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalProviderContract(t *testing.T) {
	t.Parallel()
	providerContract(t, lock.NewLocalProvider())
}

func TestRedisProviderContract(t *testing.T) {
	t.Parallel()
	p, _ := newRedisProvider(t)
	providerContract(t, p)
}

func TestLocalProviderWaitsForRelease(t *testing.T) {
	t.Parallel()
	p := lock.NewLocalProvider()

	held, err := p.Acquire(t.Context(), "k", time.Minute, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = held.Release(context.Background())
	}()

	next, err := p.Acquire(t.Context(), "k", time.Minute, time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Release(t.Context()))
}

func TestLocalProviderLeaseExpires(t *testing.T) {
	t.Parallel()
	p := lock.NewLocalProvider()

	held, err := p.Acquire(t.Context(), "k", 20*time.Millisecond, 0)
	require.NoError(t, err)

	next, err := p.Acquire(t.Context(), "k", time.Minute, time.Second)
	require.NoError(t, err, "expired lease frees the key")

	assert.ErrorIs(t, held.Release(t.Context()), lock.ErrLeaseLost)
	require.NoError(t, next.Release(t.Context()))
}

func TestLocalProviderHonoursContext(t *testing.T) {
	t.Parallel()
	p := lock.NewLocalProvider()

	held, err := p.Acquire(t.Context(), "k", time.Minute, 0)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = p.Acquire(ctx, "k", time.Minute, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisProviderLeaseExpires(t *testing.T) {
	t.Parallel()
	p, mr := newRedisProvider(t)

	held, err := p.Acquire(t.Context(), "k", time.Second, 0)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	next, err := p.Acquire(t.Context(), "k", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)

	// 旧持有者不能删除新持有者的锁
	assert.ErrorIs(t, held.Release(t.Context()), lock.ErrLeaseLost)
	assert.True(t, mr.Exists("lock:k"))
	require.NoError(t, next.Release(t.Context()))
	assert.False(t, mr.Exists("lock:k"))
}

func TestRedisProviderUnavailable(t *testing.T) {
	t.Parallel()
	p, mr := newRedisProvider(t)
	mr.Close()

	_, err := p.Acquire(t.Context(), "k", time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, lock.ErrUnavailable)
}

func TestGuardRequiresContentBeforeAuthor(t *testing.T) {
	t.Parallel()
	g := lock.NewGuard(lock.NewLocalProvider(), time.Minute, 50*time.Millisecond, zap.NewNop())

	called := false
	err := g.WithAuthor(t.Context(), 1, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, lock.ErrLockOrder)
	assert.False(t, called)

	err = g.WithContent(t.Context(), "content:post:1", func(ctx context.Context) error {
		return g.WithAuthor(ctx, 1, func() error {
			called = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestGuardReleasesOnError(t *testing.T) {
	t.Parallel()
	p := lock.NewLocalProvider()
	g := lock.NewGuard(p, time.Minute, 50*time.Millisecond, zap.NewNop())
	boom := errors.New("boom")

	err := g.WithContent(t.Context(), "content:post:1", func(ctx context.Context) error {
		return g.WithAuthor(ctx, 7, func() error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	for _, key := range []string{"content:post:1", lock.AuthorKey(7)} {
		l, err := p.Acquire(t.Context(), key, time.Minute, 0)
		require.NoError(t, err, key)
		require.NoError(t, l.Release(t.Context()))
	}
}

func TestGuardSerializesSameContent(t *testing.T) {
	t.Parallel()
	g := lock.NewGuard(lock.NewLocalProvider(), time.Minute, 10*time.Second, zap.NewNop())

	// 非原子的读改写，只有在锁真正互斥时结果才正确
	counter := 0
	var wg conc.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Go(func() {
			err := g.WithContent(context.Background(), "content:post:1", func(context.Context) error {
				v := counter
				time.Sleep(10 * time.Microsecond)
				counter = v + 1
				return nil
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
