package trust

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/SlpAus/fedivote/internal/actor"
	"github.com/SlpAus/fedivote/internal/community"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// DenyReason 说明投票为何被策略拒绝，空值表示允许
type DenyReason string

const (
	Allowed               DenyReason = ""
	DenyBanned            DenyReason = "banned"
	DenyBot               DenyReason = "bot"
	DenyCommunityBan      DenyReason = "community_ban"
	DenyReputation        DenyReason = "reputation_threshold"
	DenyCommunityPolicy   DenyReason = "community_policy"
	DenyDownvotesDisabled DenyReason = "downvotes_disabled"
	DenyLocalOnly         DenyReason = "local_only"
)

const (
	// 低于任一阈值的用户不能踩
	attitudeFloor   = -0.40
	reputationFloor = -10.0

	defaultWeight = 1.0

	instanceCacheSize = 4096
	instanceCacheTTL  = 5 * time.Minute

	// 合并后的查询不随任何单个调用方取消，只受这个时限约束
	instanceLookupTimeout = 3 * time.Second
)

// InstanceSource 读取实例信任记录，不存在时返回 actor.ErrInstanceNotFound
type InstanceSource interface {
	Instance(ctx context.Context, id uint) (actor.Instance, error)
}

// MembershipSource 读取用户在社区中的成员关系
type MembershipSource interface {
	Membership(ctx context.Context, actorID, communityID uint) (community.Membership, error)
}

// SitePolicy 是全站级别的投票策略
type SitePolicy struct {
	DownvotesEnabled bool
	LocalInstanceID  uint
}

type cachedInstance struct {
	instance actor.Instance
	found    bool
}

// Resolver 解析实例投票权重并判定用户能否赞/踩。
type Resolver struct {
	instances InstanceSource
	members   MembershipSource
	site      SitePolicy

	cache *expirable.LRU[uint, cachedInstance]
	group singleflight.Group
}

// NewResolver 创建信任解析器
func NewResolver(instances InstanceSource, members MembershipSource, site SitePolicy) *Resolver {
	return &Resolver{
		instances: instances,
		members:   members,
		site:      site,
		cache:     expirable.NewLRU[uint, cachedInstance](instanceCacheSize, nil, instanceCacheTTL),
	}
}

// ResolveUpvoteWeight 返回用户所属实例的赞权重；本站和未知实例为 1.0。
// 踩的效果固定为 -1，不经过这里。
func (r *Resolver) ResolveUpvoteWeight(ctx context.Context, a actor.Actor) (float64, error) {
	if a.IsLocal(r.site.LocalInstanceID) {
		return defaultWeight, nil
	}
	inst, found, err := r.instance(ctx, a.InstanceID)
	if err != nil {
		return 0, err
	}
	if !found {
		return defaultWeight, nil
	}
	return inst.VoteWeight, nil
}

// CanUpvote 判定用户能否在社区中点赞
func (r *Resolver) CanUpvote(ctx context.Context, a actor.Actor, c community.Community) (DenyReason, error) {
	if a.Banned {
		return DenyBanned, nil
	}
	if a.Bot {
		return DenyBot, nil
	}
	m, err := r.members.Membership(ctx, a.ID, c.ID)
	if err != nil {
		return Allowed, err
	}
	if m.Banned {
		return DenyCommunityBan, nil
	}
	return Allowed, nil
}

// CanDownvote 判定用户能否踩社区中的某条内容，contentInstanceID 是内容所在实例
func (r *Resolver) CanDownvote(ctx context.Context, a actor.Actor, c community.Community, contentInstanceID uint) (DenyReason, error) {
	if !r.site.DownvotesEnabled {
		return DenyDownvotesDisabled, nil
	}
	if a.Banned {
		return DenyBanned, nil
	}
	if a.Bot {
		return DenyBot, nil
	}
	if c.LocalOnly && !a.IsLocal(r.site.LocalInstanceID) {
		return DenyLocalOnly, nil
	}
	if a.Attitude < attitudeFloor || a.Reputation < reputationFloor {
		return DenyReputation, nil
	}

	m, err := r.members.Membership(ctx, a.ID, c.ID)
	if err != nil {
		return Allowed, err
	}
	if m.Banned {
		return DenyCommunityBan, nil
	}

	switch c.DownvoteAcceptMode {
	case community.AcceptMembers:
		if !m.Member {
			return DenyCommunityPolicy, nil
		}
	case community.AcceptInstance:
		if a.InstanceID != contentInstanceID {
			return DenyCommunityPolicy, nil
		}
	case community.AcceptTrusted:
		if a.InstanceID == c.InstanceID {
			return Allowed, nil
		}
		inst, found, err := r.instance(ctx, a.InstanceID)
		if err != nil {
			return Allowed, err
		}
		if !found || !inst.Trusted {
			return DenyCommunityPolicy, nil
		}
	}
	return Allowed, nil
}

// instance 读取实例记录，命中缓存时不访问数据库；并发的未命中合并为一次查询。
func (r *Resolver) instance(ctx context.Context, id uint) (actor.Instance, bool, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached.instance, cached.found, nil
	}

	ch := r.group.DoChan(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), instanceLookupTimeout)
		defer cancel()
		inst, err := r.instances.Instance(lookupCtx, id)
		if err != nil {
			if errors.Is(err, actor.ErrInstanceNotFound) {
				entry := cachedInstance{}
				r.cache.Add(id, entry)
				return entry, nil
			}
			return nil, err
		}
		entry := cachedInstance{instance: inst, found: true}
		r.cache.Add(id, entry)
		return entry, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return actor.Instance{}, false, ctx.Err()
	}
	if res.Err != nil {
		return actor.Instance{}, false, res.Err
	}
	entry := res.Val.(cachedInstance)
	return entry.instance, entry.found, nil
}
