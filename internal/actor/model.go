package actor

import (
	"time"
	"unicode/utf8"
)

// Actor 是参与投票的用户（本地或联邦远端）。
// 本引擎只通过 ReputationPropagator 修改其 Reputation 字段。
type Actor struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	InstanceID uint   `gorm:"index;not null" json:"instance_id"`
	Username   string `gorm:"type:varchar(255);not null" json:"username"`
	Bot        bool   `json:"bot"`
	Banned     bool   `json:"banned"`

	Reputation float64 `gorm:"not null;default:0" json:"reputation"`
	// Attitude 取值 -1..1，反映该用户历史上赞与踩的倾向
	Attitude float64 `json:"attitude"`
	// ContentCount 是发帖数与回复数之和
	ContentCount int `json:"content_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Actor) TableName() string { return "actors" }

// IsLocal 判断用户是否属于本站实例
func (a Actor) IsLocal(localInstanceID uint) bool {
	return a.InstanceID == localInstanceID
}

// UsernameLength 按字符而非字节计算用户名长度
func (a Actor) UsernameLength() int {
	return utf8.RuneCountInString(a.Username)
}

// Instance 是一个联邦实例的信任记录，对本引擎只读。
type Instance struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Domain     string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"domain"`
	VoteWeight float64 `gorm:"not null" json:"vote_weight"`
	Trusted    bool    `json:"trusted"`
}

// TableName 指定表名
func (Instance) TableName() string { return "instances" }
