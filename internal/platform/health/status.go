package health

import (
	"sync"

	"go.uber.org/zap"
)

// State 定义了Redis侧缓存的健康状态
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateRebuilding:
		return "rebuilding"
	}
	return "unknown"
}

// Status 负责线程安全地管理Redis的健康状态。
// 降级期间不写排序索引；数据库始终是真实来源，不受影响。
type Status struct {
	mu             sync.RWMutex
	currentState   State
	lastKnownRunID string
	logger         *zap.Logger
}

// NewStatus 创建初始为健康的状态机
func NewStatus(logger *zap.Logger) *Status {
	return &Status{currentState: StateHealthy, logger: logger.Named("health")}
}

// State 返回当前状态
func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentState
}

// Healthy 报告Redis是否处于健康状态
func (s *Status) Healthy() bool {
	return s.State() == StateHealthy
}

// Writable 报告排序索引是否接受写入。
// 重建期间照常写入，版本号保证重建读到的旧行不会覆盖更新的写入。
func (s *Status) Writable() bool {
	return s.State() != StateDegraded
}

// SetInitialRunID 在启动完成首次预热后调用
func (s *Status) SetInitialRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnownRunID = runID
}

// Assess 根据一次检查结果推进状态，返回是否需要重建缓存
func (s *Status) Assess(connected bool, runID string) (needsRebuild bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restarted := s.lastKnownRunID != "" && s.lastKnownRunID != runID

	switch s.currentState {
	case StateHealthy:
		if !connected {
			s.currentState = StateDegraded
			s.logger.Warn("Redis连接丢失，系统状态 -> [降级]")
		} else if restarted {
			s.currentState = StateRebuilding
			needsRebuild = true
			s.logger.Warn("检测到Redis重启，系统状态 -> [重建中]", zap.String("old_run_id", s.lastKnownRunID), zap.String("new_run_id", runID))
		}
	case StateDegraded:
		if connected {
			if restarted {
				s.currentState = StateRebuilding
				needsRebuild = true
				s.logger.Warn("Redis已恢复但检测到重启，系统状态 -> [重建中]", zap.String("old_run_id", s.lastKnownRunID), zap.String("new_run_id", runID))
			} else {
				// 降级期间写入被跳过，索引可能已经落后
				s.currentState = StateRebuilding
				needsRebuild = true
				s.logger.Info("Redis连接已恢复，需要补齐降级期间跳过的索引写入，系统状态 -> [重建中]")
			}
		}
	case StateRebuilding:
		if !connected {
			s.currentState = StateDegraded
			s.logger.Warn("在缓存重建期间Redis连接再次丢失，系统状态 -> [降级]")
		} else {
			// 连接正常但仍处于重建状态，说明上次重建失败了
			needsRebuild = true
			s.logger.Info("系统处于[重建中]状态，将再次尝试重建缓存")
		}
	}

	if connected {
		s.lastKnownRunID = runID
	}
	return needsRebuild
}

// MarkRebuildComplete 在一次重建尝试之后调用
func (s *Status) MarkRebuildComplete(success bool, runIDAfterRebuild string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentState != StateRebuilding {
		return
	}

	// 重建期间Redis再次重启，本次重建无效
	if success && s.lastKnownRunID != runIDAfterRebuild {
		s.logger.Warn("缓存重建期间检测到Redis再次重启，保持[重建中]状态",
			zap.String("old_run_id", s.lastKnownRunID), zap.String("new_run_id", runIDAfterRebuild))
		s.lastKnownRunID = runIDAfterRebuild
		return
	}

	if success {
		s.currentState = StateHealthy
		s.logger.Info("缓存重建成功，系统状态 -> [健康]")
	} else {
		s.logger.Warn("缓存重建失败，系统状态保持 [重建中] 以待重试")
	}
}
