package startup

import (
	"context"
	"fmt"

	"github.com/SlpAus/fedivote/internal/actor"
	"github.com/SlpAus/fedivote/internal/community"
	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/internal/platform/health"
	"github.com/SlpAus/fedivote/internal/platform/metadata"
	"github.com/SlpAus/fedivote/internal/ranking"
	"github.com/SlpAus/fedivote/internal/vote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Migrate 迁移全部模块的表
func Migrate(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		metadata.Migrate,
		actor.Migrate,
		community.Migrate,
		content.Migrate,
		vote.Migrate,
	}
	for _, m := range migrations {
		if err := m(db); err != nil {
			return err
		}
	}
	return nil
}

// Warmer 汇总启动和重建时需要预热的组件
type Warmer struct {
	Refresher *ranking.Refresher
	Index     *content.RankIndex
	Contents  *content.Repository
	Logger    *zap.Logger
}

// InitializeApplication 是应用启动时执行的总入口：装载排序基准并重建排序索引
func (w *Warmer) InitializeApplication(ctx context.Context) error {
	w.Logger.Info("开始应用初始化")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Refresher.Prime(gctx); err != nil {
			return fmt.Errorf("装载排序基准失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return w.RebuildCache(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	w.Logger.Info("应用初始化完成")
	return nil
}

// RebuildCache 在运行时从数据库热重建Redis中的排序索引
func (w *Warmer) RebuildCache(ctx context.Context) error {
	w.Logger.Info("开始缓存热重建")
	if err := w.Index.Rebuild(ctx, w.Contents); err != nil {
		return fmt.Errorf("重建排序索引失败: %w", err)
	}
	w.Logger.Info("缓存热重建完成")
	return nil
}

// GatedIndex 在Redis降级时跳过排序索引的写入。
// 跳过的写入会在恢复后的重建中补齐；重建期间的提交照常写入，
// 否则重建读过该行之后的提交会丢失。
type GatedIndex struct {
	Index  vote.RankIndexer
	Status *health.Status
}

// Update 实现 vote.RankIndexer
func (g GatedIndex) Update(ctx context.Context, c content.Content) error {
	if !g.Status.Writable() {
		return nil
	}
	return g.Index.Update(ctx, c)
}
