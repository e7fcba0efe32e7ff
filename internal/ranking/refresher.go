package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/fedivote/internal/platform/metrics"
	"github.com/SlpAus/fedivote/pkg/lifecycle"
	"go.uber.org/zap"
)

// AverageSource 计算头部社区的平均订阅数
type AverageSource interface {
	TopPercentileAverage(ctx context.Context, percentile float64) (float64, error)
}

// ReferenceStore 持久化最近一次的基准，使重启后无需等待首次刷新
type ReferenceStore interface {
	LoadScaleReference(ctx context.Context) (float64, time.Time, bool, error)
	SaveScaleReference(ctx context.Context, average float64, refreshedAt time.Time) error
}

// Refresher 定期重新计算社区规模基准并写入 Snapshot
type Refresher struct {
	source     AverageSource
	store      ReferenceStore
	snapshot   *Snapshot
	percentile float64
	interval   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewRefresher 创建基准刷新器
func NewRefresher(source AverageSource, store ReferenceStore, snapshot *Snapshot, percentile float64, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		source:     source,
		store:      store,
		snapshot:   snapshot,
		percentile: percentile,
		interval:   interval,
		now:        time.Now,
		logger:     logger.Named("ranking_refresher"),
	}
}

// Prime 在启动时装载基准：优先使用未过期的持久化值，否则立即计算一次
func (r *Refresher) Prime(ctx context.Context) error {
	avg, at, ok, err := r.store.LoadScaleReference(ctx)
	if err != nil {
		return fmt.Errorf("读取持久化的排序基准失败: %w", err)
	}
	if ok && r.now().Sub(at) < r.interval {
		r.snapshot.Store(ScaleReference{TopAverage: avg, RefreshedAt: at})
		r.logger.Info("已从元数据恢复排序基准", zap.Float64("top_average", avg), zap.Time("refreshed_at", at))
		return nil
	}
	return r.RefreshOnce(ctx)
}

// RefreshOnce 重新计算基准，先持久化再替换快照
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	avg, err := r.source.TopPercentileAverage(ctx, r.percentile)
	if err != nil {
		metrics.ScaleRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("计算头部社区平均订阅数失败: %w", err)
	}
	ref := ScaleReference{TopAverage: avg, RefreshedAt: r.now()}
	if err := r.store.SaveScaleReference(ctx, ref.TopAverage, ref.RefreshedAt); err != nil {
		// 持久化失败不影响本进程使用新基准
		r.logger.Warn("持久化排序基准失败", zap.Error(err))
	}
	r.snapshot.Store(ref)
	metrics.ScaleRefreshTotal.WithLabelValues("ok").Inc()
	r.logger.Debug("排序基准已刷新", zap.Float64("top_average", avg))
	return nil
}

// Run 按固定间隔刷新基准，直到 handle 被取消
func (r *Refresher) Run(handle *lifecycle.Handle) {
	defer handle.Close()
	r.logger.Info("排序基准刷新器已启动", zap.Duration("interval", r.interval))

	for {
		// 可中断的休眠，收到停机信号时立刻退出
		if err := handle.Sleep(r.interval); err != nil {
			r.logger.Info("排序基准刷新器正在关闭")
			return
		}

		if err := r.RefreshOnce(handle.Ctx()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			r.logger.Error("刷新排序基准失败，保留旧值", zap.Error(err))
		}
	}
}
