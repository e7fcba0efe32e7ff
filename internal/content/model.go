package content

import (
	"fmt"
	"time"
)

// Kind 区分帖子和回复
type Kind string

const (
	KindPost  Kind = "post"
	KindReply Kind = "reply"
)

// Valid 判断是否是已知的内容类型
func (k Kind) Valid() bool {
	return k == KindPost || k == KindReply
}

// ParseKind 解析外部传入的内容类型
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Content 是可被投票的帖子或回复。
// 计数和排序字段只能由投票引擎修改。
type Content struct {
	Kind        Kind `gorm:"primaryKey;type:varchar(8)" json:"kind"`
	ID          uint `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AuthorID    uint `gorm:"index;not null" json:"author_id"`
	CommunityID uint `gorm:"index;not null" json:"community_id"`
	InstanceID  uint `gorm:"not null" json:"instance_id"`
	// PostID 仅对回复有效，指向所属帖子
	PostID    uint      `gorm:"index" json:"post_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	UpVotes       int     `gorm:"not null;default:0" json:"up_votes"`
	DownVotes     int     `gorm:"not null;default:0" json:"down_votes"`
	Score         float64 `gorm:"not null;default:0" json:"score"`
	Ranking       float64 `gorm:"not null;default:0" json:"ranking"`
	RankingScaled int64   `gorm:"not null;default:0" json:"ranking_scaled"`
	// Version 每次写回计数时加一，排序索引据此丢弃过期的写入
	Version int64 `gorm:"not null;default:0" json:"version"`
}

// TableName 指定表名
func (Content) TableName() string { return "contents" }

// TotalVotes 返回当前记录在册的投票总数
func (c Content) TotalVotes() int {
	return c.UpVotes + c.DownVotes
}

// LockKey 返回内容锁的键
func (c Content) LockKey() string {
	return LockKey(c.Kind, c.ID)
}

// LockKey 返回指定内容的锁键，格式为 content:{kind}:{id}
func LockKey(kind Kind, id uint) string {
	return fmt.Sprintf("content:%s:%d", kind, id)
}
