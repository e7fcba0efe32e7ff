package vote

import (
	"context"
	"fmt"

	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/internal/platform/database"
	"gorm.io/gorm"
)

// Ledger 是投票记录的唯一真实来源，绑定在调用方打开的事务上。
// 它自身不做串行化，调用方必须持有对应的内容锁。
type Ledger struct {
	tx *gorm.DB
}

// NewLedger 在给定事务上创建账本
func NewLedger(tx *gorm.DB) *Ledger {
	return &Ledger{tx: tx}
}

// Find 查找用户对内容的投票，不存在时返回 nil
func (l *Ledger) Find(ctx context.Context, voterID uint, kind content.Kind, contentID uint) (*Vote, error) {
	var rows []Vote
	err := l.tx.WithContext(ctx).
		Where("voter_id = ? AND content_kind = ? AND content_id = ?", voterID, kind, contentID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询投票记录失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Create 写入一条新投票
func (l *Ledger) Create(ctx context.Context, v *Vote) error {
	if err := l.tx.WithContext(ctx).Create(v).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: voter=%d %s", ErrDuplicateVote, v.VoterID, content.LockKey(v.ContentKind, v.ContentID))
		}
		return fmt.Errorf("写入投票记录失败: %w", err)
	}
	return nil
}

// SetEffect 在翻转时原地更新投票的方向和效果
func (l *Ledger) SetEffect(ctx context.Context, v *Vote, c Contribution) error {
	v.Direction = c.Direction
	v.Effect = c.Effect
	v.ScoreDelta = c.ScoreDelta
	v.ReputationDelta = c.ReputationDelta

	err := l.tx.WithContext(ctx).Model(v).Updates(map[string]any{
		"direction":        v.Direction,
		"effect":           v.Effect,
		"score_delta":      v.ScoreDelta,
		"reputation_delta": v.ReputationDelta,
	}).Error
	if err != nil {
		return fmt.Errorf("更新投票记录 %d 失败: %w", v.ID, err)
	}
	return nil
}

// Remove 删除一条投票
func (l *Ledger) Remove(ctx context.Context, v *Vote) error {
	if err := l.tx.WithContext(ctx).Delete(&Vote{}, v.ID).Error; err != nil {
		return fmt.Errorf("删除投票记录 %d 失败: %w", v.ID, err)
	}
	return nil
}

// Migrate 迁移本模块的表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Vote{}); err != nil {
		return fmt.Errorf("无法迁移vote表: %w", err)
	}
	return nil
}
