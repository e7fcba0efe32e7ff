package vote

import (
	"errors"

	"github.com/SlpAus/fedivote/internal/platform/database"
)

var (
	// ErrInvalidDirection 是调用方错误，不会触碰任何状态
	ErrInvalidDirection = errors.New("invalid vote direction")
	// ErrLockTimeout 表示未能在时限内取得锁，可以重试
	ErrLockTimeout = errors.New("vote lock not acquired in time")
	// ErrPersistence 表示原子提交失败并已整体回滚，可以重试
	ErrPersistence = errors.New("vote persistence failed")
	// ErrNotFound 表示投票涉及的用户、内容或社区不存在
	ErrNotFound = errors.New("vote target not found")
	// ErrDuplicateVote 表示存储层的唯一约束拦截了第二条投票
	ErrDuplicateVote = errors.New("duplicate vote for actor and content")
)

// IsRetryable 判断错误是否值得调用方重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrPersistence) || database.IsRetryableError(err)
}
