package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/fedivote/internal/actor"
	"github.com/SlpAus/fedivote/internal/community"
	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/internal/lock"
	"github.com/SlpAus/fedivote/internal/platform/metrics"
	"github.com/SlpAus/fedivote/internal/ranking"
	"github.com/SlpAus/fedivote/internal/trust"
	"github.com/SlpAus/fedivote/pkg/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RankIndexer 在提交后刷新内容的排序索引
type RankIndexer interface {
	Update(ctx context.Context, c content.Content) error
}

// Deps 汇总引擎依赖的各个组件
type Deps struct {
	DB          *gorm.DB
	Guard       *lock.Guard
	Trust       *trust.Resolver
	Heuristic   trust.Heuristic
	Aggregator  *Aggregator
	Ranking     *ranking.Calculator
	Reputation  *actor.ReputationPropagator
	Actors      *actor.Repository
	Communities *community.Repository
	Contents    *content.Repository
	Emitter     Emitter
	// Index 可以为空
	Index  RankIndexer
	Logger *zap.Logger
}

// Result 是一次投票请求的结果
type Result struct {
	OldState State
	NewState State
	// Denied 非空表示请求被策略拒绝，没有任何写入
	Denied  trust.DenyReason
	Content content.Content
}

// Applied 报告请求是否改变了投票状态
func (r Result) Applied() bool {
	return r.Denied == trust.Allowed && r.OldState != r.NewState
}

// Engine 串联投票处理的全部步骤：
// 读取只读输入，在内容锁内以单个事务完成账本、计数、排序和声望的更新，释放锁后再发出事件。
type Engine struct {
	Deps
	now func() time.Time
}

// NewEngine 创建投票引擎
func NewEngine(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("vote")
	return &Engine{Deps: deps, now: time.Now}
}

// 投票输入，全部在加锁前读取
type voteInputs struct {
	voter       actor.Actor
	community   community.Community
	weight      float64
	upDeny      trust.DenyReason
	downDeny    trust.DenyReason
	suppressed  bool
	scale       int
	localActor  bool
	contentSnap content.Content
}

// 用于在事务内表示拒绝并回滚
var errDenied = errors.New("vote denied")

// Vote 处理一次投票请求
func (e *Engine) Vote(ctx context.Context, req Request) (Result, error) {
	if !req.Direction.Valid() {
		metrics.VotesTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidDirection, req.Direction)
	}
	if !req.ContentKind.Valid() {
		metrics.VotesTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Result{}, fmt.Errorf("%w: %q", content.ErrUnknownKind, req.ContentKind)
	}

	in, err := e.gather(ctx, req)
	if err != nil {
		return e.fail(req, err)
	}

	var (
		res  Result
		plan Plan
	)
	err = e.Guard.WithContent(ctx, content.LockKey(req.ContentKind, req.ContentID), func(lctx context.Context) error {
		return e.DB.WithContext(lctx).Transaction(func(tx *gorm.DB) error {
			c, err := content.LoadForUpdate(tx, req.ContentKind, req.ContentID)
			if err != nil {
				return err
			}
			ledger := NewLedger(tx)
			existing, err := ledger.Find(lctx, req.ActorID, req.ContentKind, req.ContentID)
			if err != nil {
				return err
			}

			plan = e.Aggregator.Plan(existing, req.Direction)
			res = Result{OldState: plan.From, NewState: plan.To, Content: c}
			if !plan.Changed() {
				return nil
			}

			if plan.Casts() {
				deny := in.upDeny
				if plan.To == StateDown {
					deny = in.downDeny
				}
				if deny != trust.Allowed {
					res = Result{OldState: plan.From, NewState: plan.From, Denied: deny, Content: c}
					return errDenied
				}
			}

			var repDelta float64
			if plan.Removes() {
				repDelta += e.Aggregator.Remove(&c, existing)
			}
			switch {
			case plan.Casts():
				contrib := e.Aggregator.Add(&c, plan.To, EffectInput{
					Weight:     in.weight,
					Suppressed: in.suppressed,
					LowQuality: in.community.LowQuality,
				})
				repDelta += contrib.ReputationDelta
				if existing != nil {
					err = ledger.SetEffect(lctx, existing, contrib)
				} else {
					err = ledger.Create(lctx, &Vote{
						VoterID:         req.ActorID,
						ContentKind:     req.ContentKind,
						ContentID:       req.ContentID,
						AuthorID:        c.AuthorID,
						Direction:       contrib.Direction,
						Effect:          contrib.Effect,
						ScoreDelta:      contrib.ScoreDelta,
						ReputationDelta: contrib.ReputationDelta,
					})
				}
			default:
				err = ledger.Remove(lctx, existing)
			}
			if err != nil {
				return err
			}

			e.Ranking.Apply(&c, in.scale)
			c.Version++
			if err := content.SaveTally(tx, &c); err != nil {
				return err
			}
			if err := e.Reputation.Apply(lctx, tx, c.AuthorID, repDelta); err != nil {
				return err
			}
			res.Content = c
			return nil
		})
	})

	switch {
	case errors.Is(err, errDenied):
		metrics.VotesTotal.WithLabelValues(metrics.OutcomeDenied).Inc()
		e.Logger.Debug("投票被拒绝", zap.Stringer("request", req), zap.String("reason", string(res.Denied)))
		return res, nil
	case err != nil:
		return e.fail(req, err)
	case !plan.Changed():
		metrics.VotesTotal.WithLabelValues(metrics.OutcomeNoop).Inc()
		return res, nil
	}

	metrics.VotesTotal.WithLabelValues(metrics.OutcomeApplied).Inc()
	e.afterCommit(ctx, req, res, in.localActor)
	return res, nil
}

// VoteWithRetry 对可重试的失败按指数退避重新执行整个请求
func (e *Engine) VoteWithRetry(ctx context.Context, req Request, opts retry.Options) (Result, error) {
	return retry.Do(ctx, opts, IsRetryable, func() (Result, error) {
		return e.Vote(ctx, req)
	})
}

// RegisterContent 写入新内容和作者自己的初始赞。
// 初始赞不经过权重、抑制和放大，不影响声望，也不发出事件。
func (e *Engine) RegisterContent(ctx context.Context, c content.Content) (content.Content, error) {
	if !c.Kind.Valid() {
		return content.Content{}, fmt.Errorf("%w: %q", content.ErrUnknownKind, c.Kind)
	}
	comm, err := e.Communities.Get(ctx, c.CommunityID)
	if err != nil {
		return content.Content{}, classify(err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = e.now()
	}
	c.UpVotes, c.DownVotes, c.Score = 1, 0, 1
	c.Version = 1
	e.Ranking.Apply(&c, e.scaleFor(c, comm))

	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := content.Insert(tx, &c); err != nil {
			return err
		}
		return NewLedger(tx).Create(ctx, &Vote{
			VoterID:     c.AuthorID,
			ContentKind: c.Kind,
			ContentID:   c.ID,
			AuthorID:    c.AuthorID,
			Direction:   StateUp,
			Effect:      1,
			ScoreDelta:  1,
		})
	})
	if err != nil {
		if errors.Is(err, content.ErrExists) {
			return content.Content{}, err
		}
		return content.Content{}, classify(err)
	}

	e.updateIndex(ctx, c)
	e.Logger.Debug("内容已登记", zap.String("content", c.LockKey()), zap.Uint("author", c.AuthorID))
	return c, nil
}

func (e *Engine) gather(ctx context.Context, req Request) (voteInputs, error) {
	var in voteInputs
	var err error

	if in.voter, err = e.Actors.Get(ctx, req.ActorID); err != nil {
		return in, err
	}
	if in.contentSnap, err = e.Contents.Get(ctx, req.ContentKind, req.ContentID); err != nil {
		return in, err
	}
	if in.community, err = e.Communities.Get(ctx, in.contentSnap.CommunityID); err != nil {
		return in, err
	}
	if in.weight, err = e.Trust.ResolveUpvoteWeight(ctx, in.voter); err != nil {
		return in, err
	}
	if in.upDeny, err = e.Trust.CanUpvote(ctx, in.voter, in.community); err != nil {
		return in, err
	}
	if in.downDeny, err = e.Trust.CanDownvote(ctx, in.voter, in.community, in.contentSnap.InstanceID); err != nil {
		return in, err
	}
	in.suppressed = e.Heuristic.CannotVote(in.voter)
	in.localActor = in.voter.IsLocal(e.Heuristic.LocalInstanceID)
	in.scale = e.scaleFor(in.contentSnap, in.community)
	return in, nil
}

func (e *Engine) scaleFor(c content.Content, comm community.Community) int {
	if c.Kind != content.KindPost {
		return 0
	}
	return e.Ranking.ScaleBy(comm.SubscriptionsCount)
}

// afterCommit 发出事件并刷新索引；失败只记录，不影响已提交的结果
func (e *Engine) afterCommit(ctx context.Context, req Request, res Result, local bool) {
	ev := newVoteChanged(req, res.OldState, res.NewState, e.now())
	var signal *FederationSignal
	if local {
		if sig, ok := SignalFor(ev); ok {
			signal = &sig
		}
	}
	if e.Emitter != nil {
		if err := e.Emitter.Emit(ctx, ev, signal); err != nil {
			metrics.EmitFailuresTotal.WithLabelValues("events").Inc()
			e.Logger.Warn("投票事件发送失败", zap.String("event_id", ev.EventID), zap.Stringer("request", req), zap.Error(err))
		}
	}
	e.updateIndex(ctx, res.Content)
}

func (e *Engine) updateIndex(ctx context.Context, c content.Content) {
	if e.Index == nil {
		return
	}
	if err := e.Index.Update(ctx, c); err != nil {
		metrics.EmitFailuresTotal.WithLabelValues("rank_index").Inc()
		e.Logger.Warn("排序索引更新失败", zap.String("content", c.LockKey()), zap.Error(err))
	}
}

func (e *Engine) fail(req Request, err error) (Result, error) {
	err = classify(err)
	metrics.VotesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	if errors.Is(err, ErrNotFound) {
		e.Logger.Debug("投票目标不存在", zap.Stringer("request", req), zap.Error(err))
	} else {
		e.Logger.Warn("投票处理失败", zap.Stringer("request", req), zap.Error(err))
	}
	return Result{}, err
}

// classify 把下层错误归入本包的错误类别
func classify(err error) error {
	switch {
	case errors.Is(err, lock.ErrTimeout), errors.Is(err, lock.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	case errors.Is(err, actor.ErrNotFound),
		errors.Is(err, content.ErrNotFound),
		errors.Is(err, community.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ErrDuplicateVote),
		errors.Is(err, lock.ErrLockOrder),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
