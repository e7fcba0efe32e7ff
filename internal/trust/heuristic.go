package trust

import "github.com/SlpAus/fedivote/internal/actor"

// 已知刷票机器人的特征：远端新号、零发帖、8 字符用户名
const botUsernameLength = 8

// Heuristic 识别其投票应被记录但不计入效果的用户
type Heuristic struct {
	LocalInstanceID uint
}

// CannotVote 为 true 时，该用户的投票照常记入账本，但 effect 为 0。
func (h Heuristic) CannotVote(a actor.Actor) bool {
	return !a.IsLocal(h.LocalInstanceID) &&
		a.ContentCount == 0 &&
		a.UsernameLength() == botUsernameLength
}
