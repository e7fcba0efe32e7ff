package actor

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// AuthorLocker 在持有作者锁期间执行 fn。
// 调用方必须已经持有对应内容锁。
type AuthorLocker interface {
	WithAuthor(ctx context.Context, authorID uint, fn func() error) error
}

// ReputationPropagator 把一次投票对作者声望的影响写入当前事务。
type ReputationPropagator struct {
	locker AuthorLocker
}

// NewReputationPropagator 创建声望传播器
func NewReputationPropagator(locker AuthorLocker) *ReputationPropagator {
	return &ReputationPropagator{locker: locker}
}

// Apply 在作者锁内对 reputation 做原子增量，delta 为 0 时不加锁也不写库。
func (p *ReputationPropagator) Apply(ctx context.Context, tx *gorm.DB, authorID uint, delta float64) error {
	if delta == 0 {
		return nil
	}
	return p.locker.WithAuthor(ctx, authorID, func() error {
		res := tx.Model(&Actor{}).
			Where("id = ?", authorID).
			UpdateColumn("reputation", gorm.Expr("reputation + ?", delta))
		if res.Error != nil {
			return fmt.Errorf("更新作者 %d 声望失败: %w", authorID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, authorID)
		}
		return nil
	})
}
