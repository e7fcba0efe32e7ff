package vote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SlpAus/fedivote/internal/content"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// VoteChanged 在每次成功的状态转移提交后发出
type VoteChanged struct {
	EventID     string       `json:"event_id"`
	ActorID     uint         `json:"actor_id"`
	ContentKind content.Kind `json:"content_kind"`
	ContentID   uint         `json:"content_id"`
	OldState    State        `json:"old_state"`
	NewState    State        `json:"new_state"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// ActivityKind 是对外联邦的活动类型
type ActivityKind string

const (
	ActivityLike    ActivityKind = "Like"
	ActivityDislike ActivityKind = "Dislike"
)

// FederationSignal 通知联邦层发出对应的活动，只针对本站用户
type FederationSignal struct {
	EventID      string       `json:"event_id"`
	ActorID      uint         `json:"actor_id"`
	ContentKind  content.Kind `json:"content_kind"`
	ContentID    uint         `json:"content_id"`
	ActivityKind ActivityKind `json:"activity_kind"`
	Undo         bool         `json:"undo"`
}

// SignalFor 根据状态转移给出联邦活动；状态未变时返回 false。
// 取消时撤销原来的活动，新投或翻转时发出新方向的活动。
func SignalFor(ev VoteChanged) (FederationSignal, bool) {
	sig := FederationSignal{
		EventID:     ev.EventID,
		ActorID:     ev.ActorID,
		ContentKind: ev.ContentKind,
		ContentID:   ev.ContentID,
	}
	switch {
	case ev.OldState == ev.NewState:
		return FederationSignal{}, false
	case ev.NewState == StateUp:
		sig.ActivityKind = ActivityLike
	case ev.NewState == StateDown:
		sig.ActivityKind = ActivityDislike
	case ev.OldState == StateUp:
		sig.ActivityKind, sig.Undo = ActivityLike, true
	case ev.OldState == StateDown:
		sig.ActivityKind, sig.Undo = ActivityDislike, true
	}
	return sig, true
}

func newVoteChanged(req Request, from, to State, at time.Time) VoteChanged {
	return VoteChanged{
		EventID:     uuid.NewString(),
		ActorID:     req.ActorID,
		ContentKind: req.ContentKind,
		ContentID:   req.ContentID,
		OldState:    from,
		NewState:    to,
		OccurredAt:  at,
	}
}

// Emitter 投递已提交的投票事件。signal 为 nil 时不需要联邦。
type Emitter interface {
	Emit(ctx context.Context, ev VoteChanged, signal *FederationSignal) error
}

// RedisStreamEmitter 把事件写入 Redis Stream，下游消费者按 event_id 去重
type RedisStreamEmitter struct {
	rdb              *redis.Client
	changedStream    string
	federationStream string
	maxLen           int64
}

// NewRedisStreamEmitter 创建基于 Redis Stream 的事件发送器
func NewRedisStreamEmitter(rdb *redis.Client, changedStream, federationStream string, maxLen int64) *RedisStreamEmitter {
	return &RedisStreamEmitter{
		rdb:              rdb,
		changedStream:    changedStream,
		federationStream: federationStream,
		maxLen:           maxLen,
	}
}

// Emit 在一个事务管道里写入投票事件和可选的联邦信号
func (e *RedisStreamEmitter) Emit(ctx context.Context, ev VoteChanged, signal *FederationSignal) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化投票事件失败: %w", err)
	}

	pipe := e.rdb.TxPipeline()
	pipe.XAdd(ctx, e.args(e.changedStream, payload))
	if signal != nil {
		sigPayload, err := sonic.Marshal(signal)
		if err != nil {
			return fmt.Errorf("序列化联邦信号失败: %w", err)
		}
		pipe.XAdd(ctx, e.args(e.federationStream, sigPayload))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入事件流失败: %w", err)
	}
	return nil
}

func (e *RedisStreamEmitter) args(stream string, payload []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: e.maxLen,
		Approx: e.maxLen > 0,
		Values: map[string]any{"payload": string(payload)},
	}
}

// MemoryEmitter 把事件保存在内存中，用于测试和单机调试
type MemoryEmitter struct {
	mu      sync.Mutex
	changes []VoteChanged
	signals []FederationSignal
}

// Emit 记录事件
func (m *MemoryEmitter) Emit(_ context.Context, ev VoteChanged, signal *FederationSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, ev)
	if signal != nil {
		m.signals = append(m.signals, *signal)
	}
	return nil
}

// Changes 返回已记录的投票事件副本
func (m *MemoryEmitter) Changes() []VoteChanged {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VoteChanged(nil), m.changes...)
}

// Signals 返回已记录的联邦信号副本
func (m *MemoryEmitter) Signals() []FederationSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FederationSignal(nil), m.signals...)
}
