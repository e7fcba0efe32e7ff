package community

// DownvoteAcceptMode 决定社区接受哪些用户的踩
type DownvoteAcceptMode string

const (
	AcceptAll      DownvoteAcceptMode = "all"
	AcceptMembers  DownvoteAcceptMode = "members"
	AcceptInstance DownvoteAcceptMode = "instance"
	AcceptTrusted  DownvoteAcceptMode = "trusted"
)

// Community 是社区的策略记录，对本引擎只读。
type Community struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	InstanceID         uint               `gorm:"index;not null" json:"instance_id"`
	Name               string             `gorm:"type:varchar(255);not null" json:"name"`
	LocalOnly          bool               `json:"local_only"`
	DownvoteAcceptMode DownvoteAcceptMode `gorm:"type:varchar(16);not null;default:all" json:"downvote_accept_mode"`
	LowQuality         bool               `json:"low_quality"`
	SubscriptionsCount int                `gorm:"index" json:"subscriptions_count"`
}

// TableName 指定表名
func (Community) TableName() string { return "communities" }

// Member 表示用户与社区的关系：存在即为成员，Banned 表示被该社区封禁。
type Member struct {
	CommunityID uint `gorm:"primaryKey;autoIncrement:false"`
	ActorID     uint `gorm:"primaryKey;autoIncrement:false"`
	Banned      bool
}

// TableName 指定表名
func (Member) TableName() string { return "community_members" }

// Membership 是一次成员关系查询的结果
type Membership struct {
	Member bool
	Banned bool
}
