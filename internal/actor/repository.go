package actor

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("actor not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// Repository 提供用户和实例记录的只读访问
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建用户仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get 按ID读取用户
func (r *Repository) Get(ctx context.Context, id uint) (Actor, error) {
	var a Actor
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return Actor{}, fmt.Errorf("读取用户 %d 失败: %w", id, err)
	}
	return a, nil
}

// Instance 按ID读取实例信任记录
func (r *Repository) Instance(ctx context.Context, id uint) (Instance, error) {
	var inst Instance
	if err := r.db.WithContext(ctx).First(&inst, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Instance{}, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
		}
		return Instance{}, fmt.Errorf("读取实例 %d 失败: %w", id, err)
	}
	return inst, nil
}

// Migrate 迁移本模块的表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Actor{}, &Instance{}); err != nil {
		return fmt.Errorf("无法迁移actor表: %w", err)
	}
	return nil
}
