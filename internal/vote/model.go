package vote

import (
	"fmt"
	"time"

	"github.com/SlpAus/fedivote/internal/content"
)

// Direction 是投票请求中的方向
type Direction string

const (
	DirectionUp       Direction = "upvote"
	DirectionDown     Direction = "downvote"
	DirectionReversal Direction = "reversal"
)

// Valid 判断方向是否合法
func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionReversal:
		return true
	}
	return false
}

// State 是某用户对某内容的投票状态
type State string

const (
	StateNone State = "none"
	StateUp   State = "up"
	StateDown State = "down"
)

// Vote 定义了单条投票记录，每个 (voter, content) 至多一条。
type Vote struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	VoterID     uint         `gorm:"not null;uniqueIndex:idx_vote_pair,priority:1" json:"voter_id"`
	ContentKind content.Kind `gorm:"type:varchar(8);not null;uniqueIndex:idx_vote_pair,priority:2" json:"content_kind"`
	ContentID   uint         `gorm:"not null;uniqueIndex:idx_vote_pair,priority:3;index:idx_vote_content" json:"content_id"`
	AuthorID    uint         `gorm:"not null;index" json:"author_id"`

	// Direction 显式记录方向，效果为 0 的投票同样有方向
	Direction State `gorm:"type:varchar(8);not null" json:"direction"`
	// Effect 是未经放大的效果：赞为实例权重，踩为 -1，被抑制时为 0
	Effect float64 `gorm:"not null" json:"effect"`
	// ScoreDelta 是实际计入 content.score 的值
	ScoreDelta float64 `gorm:"not null" json:"score_delta"`
	// ReputationDelta 是实际计入作者声望的值
	ReputationDelta float64 `gorm:"not null" json:"reputation_delta"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Vote) TableName() string { return "votes" }

// Request 是一次投票请求
type Request struct {
	ActorID     uint
	ContentKind content.Kind
	ContentID   uint
	Direction   Direction
}

func (r Request) String() string {
	return fmt.Sprintf("actor=%d %s direction=%s", r.ActorID, content.LockKey(r.ContentKind, r.ContentID), r.Direction)
}
