// Package retry 封装了带指数退避的重试逻辑。
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options 控制重试的次数和退避间隔
type Options struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultOptions 对应原先处理器中 8ms 起步、最长 2s 的退避策略
var DefaultOptions = Options{
	MaxRetries:      5,
	InitialInterval: 8 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// Do 执行 fn，只有当 retryable 判定错误可重试时才会再次尝试。
func Do[T any](ctx context.Context, opts Options, retryable func(error) bool, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialInterval
	b.MaxInterval = opts.MaxInterval
	b.MaxElapsedTime = 0

	operation := func() (T, error) {
		result, err := fn()
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(b, opts.MaxRetries), ctx))
}
