package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/fedivote/pkg/lifecycle"
	"go.uber.org/zap"
)

const (
	httpTimeout     = 15 * time.Second
	gracefulTimeout = 30 * time.Second
	forcefulTimeout = 1 * time.Second
	finalizeTimeout = 5 * time.Second
)

// Finalizer 在所有后台服务退出后执行，例如关闭数据库连接
type Finalizer struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager
	finalizers      []Finalizer
	logger          *zap.Logger
}

// NewCoordinator 创建一个新的停机协调器
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, logger *zap.Logger, finalizers ...Finalizer) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		finalizers:      finalizers,
		logger:          logger.Named("shutdown"),
	}
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	c.logger.Info("收到关闭信号，开始优雅停机", zap.Stringer("signal", sig))
	c.Shutdown(server)
}

// Shutdown 依次关闭HTTP服务器、后台服务和最终清理
func (c *Coordinator) Shutdown(server *http.Server) {
	// 关闭HTTP服务器，允许正在进行的请求完成
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("HTTP服务器关闭错误", zap.Error(err))
		} else {
			c.logger.Info("HTTP服务器已关闭")
		}
		cancel()
	}

	// --- 阶段一: 优雅停机 ---
	c.logger.Info("第一阶段停机：等待后台服务完成", zap.Duration("timeout", gracefulTimeout))
	c.GracefulManager.Shutdown()

	remaining := c.GracefulManager.WaitWithTimeout(gracefulTimeout)
	if len(remaining) == 0 {
		c.logger.Info("所有服务已在第一阶段优雅关闭")
	} else {
		// --- 阶段二: 强制停机 ---
		c.logger.Warn("第一阶段超时，发送第二停机信号", zap.Strings("remaining", remaining))
		c.ForcefulManager.Shutdown()
		c.ForcefulManager.WaitWithTimeout(forcefulTimeout)
	}

	// --- 最终步骤 ---
	for _, f := range c.finalizers {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		if err := f.Fn(ctx); err != nil {
			c.logger.Error("最终清理失败", zap.String("name", f.Name), zap.Error(err))
		}
		cancel()
	}

	c.logger.Info("优雅停机完成")
}
