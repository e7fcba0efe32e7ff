package ranking

import (
	"sync/atomic"
	"time"
)

// ScaleReference 是头部社区平均订阅数的一次计算结果
type ScaleReference struct {
	TopAverage  float64
	RefreshedAt time.Time
}

// Snapshot 保存当前生效的 ScaleReference，读多写少，由 Refresher 定期替换。
type Snapshot struct {
	ref atomic.Pointer[ScaleReference]
}

// NewSnapshot 创建一个空快照
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Load 返回当前基准；ok 为 false 表示尚未加载
func (s *Snapshot) Load() (ScaleReference, bool) {
	ref := s.ref.Load()
	if ref == nil {
		return ScaleReference{}, false
	}
	return *ref, true
}

// Store 原子地替换基准
func (s *Snapshot) Store(ref ScaleReference) {
	s.ref.Store(&ref)
}
