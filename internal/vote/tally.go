package vote

import "github.com/SlpAus/fedivote/internal/content"

// SpicyTiers 是早期投票的放大系数。
// 赞在总票数 ≤10/30/60 时放大；踩只在 ≤30/60 两档放大。
type SpicyTiers struct {
	Under10     float64
	Under30     float64
	Under60     float64
	DownUnder30 float64
	DownUnder60 float64
}

// EffectInput 是计算一票效果所需的只读输入
type EffectInput struct {
	// Weight 是投票者实例的赞权重
	Weight float64
	// Suppressed 为 true 时这一票的效果强制为 0
	Suppressed bool
	// LowQuality 为 true 时赞不计入作者声望
	LowQuality bool
}

// Contribution 是一票对内容和作者的实际影响
type Contribution struct {
	Direction       State
	Effect          float64
	ScoreDelta      float64
	ReputationDelta float64
}

// Plan 描述一次状态转移
type Plan struct {
	From State
	To   State
}

// Changed 报告这次请求是否改变了投票状态
func (p Plan) Changed() bool { return p.From != p.To }

// Casts 报告转移后是否存在一票新的贡献（新投或翻转）
func (p Plan) Casts() bool { return p.Changed() && p.To != StateNone }

// Removes 报告是否需要撤销已有的贡献（取消或翻转）
func (p Plan) Removes() bool { return p.Changed() && p.From != StateNone }

// Aggregator 把投票状态转移应用到内容的计数上
type Aggregator struct {
	tiers SpicyTiers
}

// NewAggregator 创建计数器
func NewAggregator(tiers SpicyTiers) *Aggregator {
	return &Aggregator{tiers: tiers}
}

// CurrentState 返回已有投票对应的状态
func CurrentState(existing *Vote) State {
	if existing == nil {
		return StateNone
	}
	return existing.Direction
}

// Plan 实现 NONE/UP/DOWN 状态机。
// 同方向重复投票即取消；reversal 取已有投票的方向，因此总是取消；
// 没有已有投票时 reversal 不做任何事。
func (a *Aggregator) Plan(existing *Vote, d Direction) Plan {
	from := CurrentState(existing)

	var requested State
	switch d {
	case DirectionUp:
		requested = StateUp
	case DirectionDown:
		requested = StateDown
	case DirectionReversal:
		requested = from
	}

	switch requested {
	case StateNone:
		return Plan{From: from, To: from}
	case from:
		return Plan{From: from, To: StateNone}
	default:
		return Plan{From: from, To: requested}
	}
}

// Remove 撤销一票已记录的贡献，返回需要施加到作者声望上的增量
func (a *Aggregator) Remove(c *content.Content, v *Vote) float64 {
	switch v.Direction {
	case StateUp:
		c.UpVotes--
	case StateDown:
		c.DownVotes--
	}
	c.Score -= v.ScoreDelta
	return -v.ReputationDelta
}

// Add 计入一票新的贡献，放大系数按计入前的总票数决定
func (a *Aggregator) Add(c *content.Content, dir State, in EffectInput) Contribution {
	total := c.TotalVotes()

	var effect, multiplier float64
	switch dir {
	case StateUp:
		effect = in.Weight
		multiplier = a.upMultiplier(total)
		c.UpVotes++
	case StateDown:
		effect = -1.0
		multiplier = a.downMultiplier(total)
		c.DownVotes++
	}

	contrib := Contribution{Direction: dir}
	if !in.Suppressed {
		contrib.Effect = effect
		contrib.ScoreDelta = effect * multiplier
		contrib.ReputationDelta = effect
		if in.LowQuality && effect > 0 {
			contrib.ReputationDelta = 0
		}
	}
	c.Score += contrib.ScoreDelta
	return contrib
}

func (a *Aggregator) upMultiplier(total int) float64 {
	switch {
	case total <= 10:
		return tier(a.tiers.Under10)
	case total <= 30:
		return tier(a.tiers.Under30)
	case total <= 60:
		return tier(a.tiers.Under60)
	}
	return 1
}

func (a *Aggregator) downMultiplier(total int) float64 {
	switch {
	case total <= 10:
		return 1
	case total <= 30:
		return tier(a.tiers.DownUnder30)
	case total <= 60:
		return tier(a.tiers.DownUnder60)
	}
	return 1
}

// 未配置的档位不放大
func tier(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}
