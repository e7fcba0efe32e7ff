package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lock:"

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errHeld = errors.New("lock held by another owner")

// RedisProvider 基于 SET NX PX 实现跨进程的租约锁
type RedisProvider struct {
	rdb *redis.Client
}

// NewRedisProvider 创建基于Redis的锁服务
func NewRedisProvider(rdb *redis.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb}
}

// Acquire 以指数退避轮询，直到取得锁或超过 wait
func (p *RedisProvider) Acquire(ctx context.Context, key string, lease, wait time.Duration) (Lease, error) {
	fullKey := redisKeyPrefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = wait

	err := backoff.Retry(func() error {
		ok, err := p.rdb.SetNX(ctx, fullKey, token, lease).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrUnavailable, err))
		}
		if !ok {
			return errHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		return &redisLease{rdb: p.rdb, key: fullKey, token: token}, nil
	case errors.Is(err, errHeld):
		return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
	default:
		return nil, err
	}
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}
