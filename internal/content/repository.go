package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/SlpAus/fedivote/internal/platform/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound    = errors.New("content not found")
	ErrUnknownKind = errors.New("unknown content kind")
	ErrExists      = errors.New("content already exists")
)

// Repository 提供内容记录的读写
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建内容仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get 读取内容的当前快照，不加锁
func (r *Repository) Get(ctx context.Context, kind Kind, id uint) (Content, error) {
	return load(r.db.WithContext(ctx), kind, id)
}

// List 按类型分批返回全部内容，用于缓存预热
func (r *Repository) List(ctx context.Context, batch int, fn func([]Content) error) error {
	db := r.db.WithContext(ctx)
	for _, kind := range []Kind{KindPost, KindReply} {
		var lastID uint
		for {
			var rows []Content
			err := db.Where("kind = ? AND id > ?", kind, lastID).Order("id").Limit(batch).Find(&rows).Error
			if err != nil {
				return fmt.Errorf("分批读取内容失败: %w", err)
			}
			if len(rows) == 0 {
				break
			}
			if err := fn(rows); err != nil {
				return err
			}
			lastID = rows[len(rows)-1].ID
		}
	}
	return nil
}

// LoadForUpdate 在事务中重新读取内容行，支持行锁的方言会加 FOR UPDATE
func LoadForUpdate(tx *gorm.DB, kind Kind, id uint) (Content, error) {
	if database.SupportsRowLocks(tx) {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return load(tx, kind, id)
}

// Insert 在事务中写入一条新内容
func Insert(tx *gorm.DB, c *Content) error {
	if err := tx.Create(c).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrExists, LockKey(c.Kind, c.ID))
		}
		return fmt.Errorf("写入内容 %s 失败: %w", LockKey(c.Kind, c.ID), err)
	}
	return nil
}

// SaveTally 在事务中写回计数和排序字段
func SaveTally(tx *gorm.DB, c *Content) error {
	res := tx.Model(&Content{}).
		Where("kind = ? AND id = ?", c.Kind, c.ID).
		Updates(map[string]any{
			"up_votes":       c.UpVotes,
			"down_votes":     c.DownVotes,
			"score":          c.Score,
			"ranking":        c.Ranking,
			"ranking_scaled": c.RankingScaled,
			"version":        c.Version,
		})
	if res.Error != nil {
		return fmt.Errorf("更新内容 %s 计数失败: %w", LockKey(c.Kind, c.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, LockKey(c.Kind, c.ID))
	}
	return nil
}

func load(db *gorm.DB, kind Kind, id uint) (Content, error) {
	var c Content
	err := db.Where("kind = ? AND id = ?", kind, id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Content{}, fmt.Errorf("%w: %s", ErrNotFound, LockKey(kind, id))
		}
		return Content{}, fmt.Errorf("读取内容 %s 失败: %w", LockKey(kind, id), err)
	}
	return c, nil
}

// Migrate 迁移本模块的表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Content{}); err != nil {
		return fmt.Errorf("无法迁移content表: %w", err)
	}
	return nil
}
