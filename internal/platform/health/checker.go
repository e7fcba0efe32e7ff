package health

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/SlpAus/fedivote/pkg/lifecycle"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCheckInterval = 5 * time.Second
	pingTimeout          = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// RebuildFunc 从数据库重新填充Redis中的派生数据
type RebuildFunc func(ctx context.Context) error

// RunIDSource 返回Redis实例当前的run_id，实例重启后会变化
type RunIDSource interface {
	RunID(ctx context.Context) (string, error)
}

// RedisRunID 通过 INFO server 读取run_id
type RedisRunID struct {
	RDB *redis.Client
}

// RunID 从Redis服务器信息中提取run_id
func (r RedisRunID) RunID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	info, err := r.RDB.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	return ParseRunID(info)
}

// ParseRunID 从 INFO 的输出中提取run_id
func ParseRunID(info string) (string, error) {
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", errors.New("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// Checker 定期检查Redis，发现重启或恢复后触发缓存重建
type Checker struct {
	source   RunIDSource
	status   *Status
	rebuild  RebuildFunc
	interval time.Duration
	logger   *zap.Logger
}

// NewChecker 创建健康检查器，interval 为 0 时使用默认值
func NewChecker(source RunIDSource, status *Status, rebuild RebuildFunc, interval time.Duration, logger *zap.Logger) *Checker {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		source:   source,
		status:   status,
		rebuild:  rebuild,
		interval: interval,
		logger:   logger.Named("health"),
	}
}

// Initialize 在启动时获取初始run_id
func (c *Checker) Initialize(ctx context.Context) error {
	runID, err := c.source.RunID(ctx)
	if err != nil {
		return err
	}
	c.status.SetInitialRunID(runID)
	c.logger.Info("获取初始Redis Run ID成功", zap.String("run_id", runID))
	return nil
}

// PerformCheck 执行一次完整的健康检查和可能的修复操作
func (c *Checker) PerformCheck(ctx context.Context) {
	runID, err := c.source.RunID(ctx)
	if !c.status.Assess(err == nil, runID) {
		return
	}

	c.logger.Info("正在触发缓存热重建")
	if err := c.rebuild(ctx); err != nil {
		c.logger.Error("缓存热重建失败", zap.Error(err))
		c.status.MarkRebuildComplete(false, "")
		return
	}

	// 重建后再次检查run_id以确认原子性
	after, err := c.source.RunID(ctx)
	if err != nil {
		c.logger.Error("缓存重建后无法连接到Redis，重建无效", zap.Error(err))
		c.status.MarkRebuildComplete(false, "")
		return
	}
	c.status.MarkRebuildComplete(true, after)
}

// Run 在后台循环执行检查，直到 handle 被关闭
func (c *Checker) Run(handle *lifecycle.Handle) {
	defer handle.Close()
	c.logger.Info("Redis健康检查器已启动", zap.Duration("interval", c.interval))

	for {
		if err := handle.Sleep(c.interval); err != nil {
			c.logger.Info("Redis健康检查器正在关闭")
			return
		}
		c.PerformCheck(handle.Ctx())
	}
}
