package community

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("community not found")

// Repository 提供社区策略和成员关系的只读访问
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建社区仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get 按ID读取社区
func (r *Repository) Get(ctx context.Context, id uint) (Community, error) {
	var c Community
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Community{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return Community{}, fmt.Errorf("读取社区 %d 失败: %w", id, err)
	}
	return c, nil
}

// Membership 查询用户在社区中的成员与封禁状态
func (r *Repository) Membership(ctx context.Context, actorID, communityID uint) (Membership, error) {
	var rows []Member
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND actor_id = ?", communityID, actorID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return Membership{}, fmt.Errorf("读取成员关系失败: %w", err)
	}
	if len(rows) == 0 {
		return Membership{}, nil
	}
	return Membership{Member: true, Banned: rows[0].Banned}, nil
}

// TopPercentileAverage 计算订阅数最高的 percentile 比例社区的平均订阅数。
// 至少取一个社区；没有社区时返回 0。
func (r *Repository) TopPercentileAverage(ctx context.Context, percentile float64) (float64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&Community{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("统计社区数量失败: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	n := int(math.Ceil(float64(total)*percentile - 1e-9))
	if n < 1 {
		n = 1
	}

	var counts []int
	err := db.Model(&Community{}).
		Order("subscriptions_count DESC").
		Limit(n).
		Pluck("subscriptions_count", &counts).Error
	if err != nil {
		return 0, fmt.Errorf("读取订阅数失败: %w", err)
	}

	sum := 0
	for _, c := range counts {
		sum += c
	}
	return float64(sum) / float64(len(counts)), nil
}

// Migrate 迁移本模块的表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Community{}, &Member{}); err != nil {
		return fmt.Errorf("无法迁移community表: %w", err)
	}
	return nil
}
