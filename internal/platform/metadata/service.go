package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Generic Accessors ---

// GetValue retrieves a value for a given key from the metadata table.
func GetValue(db *gorm.DB, key string) (string, error) {
	var meta Metadata
	err := db.Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// If the key doesn't exist, return an empty string, which is a valid default.
			return "", nil
		}
		return "", err
	}
	return meta.Value, nil
}

// SetValue creates or updates a value for a given key.
func SetValue(db *gorm.DB, key, value string) error {
	meta := Metadata{
		Key:   key,
		Value: value,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error
}

// --- Scale reference ---

// Store 将排序缩放基准持久化到metadata表中
type Store struct {
	db *gorm.DB
}

// NewStore 创建一个基于gorm的元数据存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// LoadScaleReference 读取上次计算的基准；ok 为 false 表示尚未计算过
func (s *Store) LoadScaleReference(ctx context.Context) (average float64, refreshedAt time.Time, ok bool, err error) {
	db := s.db.WithContext(ctx)

	avgStr, err := GetValue(db, ScaleTopAverageKey)
	if err != nil || avgStr == "" {
		return 0, time.Time{}, false, err
	}
	average, err = strconv.ParseFloat(avgStr, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("无法解析元数据 '%s' 的值: %w", ScaleTopAverageKey, err)
	}

	atStr, err := GetValue(db, ScaleRefreshedAtKey)
	if err != nil {
		return 0, time.Time{}, false, err
	}
	if atStr != "" {
		refreshedAt, err = time.Parse(time.RFC3339, atStr)
		if err != nil {
			return 0, time.Time{}, false, fmt.Errorf("无法解析元数据 '%s' 的值: %w", ScaleRefreshedAtKey, err)
		}
	}
	return average, refreshedAt, true, nil
}

// SaveScaleReference 在同一事务中写入基准值和刷新时间
func (s *Store) SaveScaleReference(ctx context.Context, average float64, refreshedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := SetValue(tx, ScaleTopAverageKey, strconv.FormatFloat(average, 'f', -1, 64)); err != nil {
			return fmt.Errorf("更新元数据 %s 失败: %w", ScaleTopAverageKey, err)
		}
		if err := SetValue(tx, ScaleRefreshedAtKey, refreshedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("更新元数据 %s 失败: %w", ScaleRefreshedAtKey, err)
		}
		return nil
	})
}
