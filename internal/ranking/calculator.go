package ranking

import (
	"math"
	"time"

	"github.com/SlpAus/fedivote/internal/content"
)

const (
	// DefaultEpochOffset 是热度时间项的零点（Unix秒）
	DefaultEpochOffset = 1685766018

	// 时间项的衰减除数：每 45000 秒相当于得分的一个数量级
	decaySeconds = 45000.0

	// 95% 置信度对应的 z 值
	wilsonZ = 1.959963984540054

	// 社区规模加成的最大档位
	maxScale = 4
)

// Calculator 在每次计数变化后重新计算内容的排序字段
type Calculator struct {
	epochOffset int64
	snapshot    *Snapshot
}

// NewCalculator 创建排序计算器，snapshot 提供社区规模基准
func NewCalculator(epochOffset int64, snapshot *Snapshot) *Calculator {
	return &Calculator{epochOffset: epochOffset, snapshot: snapshot}
}

// PostRanking 计算帖子的热度，保留 7 位小数
func (c *Calculator) PostRanking(score float64, createdAt time.Time) float64 {
	order := math.Log10(math.Max(math.Abs(score), 1))
	switch {
	case score < 0:
		order = -order
	case score == 0:
		order = 0
	}
	seconds := float64(createdAt.UnixMicro())/1e6 - float64(c.epochOffset)
	return roundTo7(order + seconds/decaySeconds)
}

// WilsonLowerBound 返回好评比例在 95% 置信度下的下界，没有投票时为 0
func WilsonLowerBound(up, down int) float64 {
	n := float64(up + down)
	if n <= 0 {
		return 0
	}
	p := float64(up) / n
	z2 := wilsonZ * wilsonZ
	left := p + z2/(2*n)
	right := wilsonZ * math.Sqrt(p*(1-p)/n+z2/(4*n*n))
	under := 1 + z2/n
	return (left - right) / under
}

// ScaleBy 根据社区订阅数相对头部社区平均值的比例给出 0..4 的加成，
// 社区越小加成越大；尚无基准时为 0。
func (c *Calculator) ScaleBy(subscriptions int) int {
	ref, ok := c.snapshot.Load()
	if !ok || ref.TopAverage <= 0 {
		return 0
	}
	threshold := ref.TopAverage
	subs := float64(subscriptions)
	for scale := 0; scale < maxScale; scale++ {
		if subs >= threshold {
			return scale
		}
		threshold /= 4
	}
	return maxScale
}

// Apply 重新计算内容的 ranking 和 ranking_scaled
func (c *Calculator) Apply(ct *content.Content, scale int) {
	switch ct.Kind {
	case content.KindPost:
		ct.Ranking = c.PostRanking(ct.Score, ct.CreatedAt)
		ct.RankingScaled = int64(math.Floor(ct.Ranking + float64(scale)))
	case content.KindReply:
		ct.Ranking = WilsonLowerBound(ct.UpVotes, ct.DownVotes)
		ct.RankingScaled = 0
	}
}

func roundTo7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
