package trust_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SlpAus/fedivote/internal/actor"
	"github.com/SlpAus/fedivote/internal/community"
	"github.com/SlpAus/fedivote/internal/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localInstance = 1

type fakeInstances struct {
	byID  map[uint]actor.Instance
	calls atomic.Int32
	err   error
}

func (f *fakeInstances) Instance(_ context.Context, id uint) (actor.Instance, error) {
	f.calls.Add(1)
	if f.err != nil {
		return actor.Instance{}, f.err
	}
	inst, ok := f.byID[id]
	if !ok {
		return actor.Instance{}, fmt.Errorf("%w: %d", actor.ErrInstanceNotFound, id)
	}
	return inst, nil
}

type fakeMembers map[[2]uint]community.Membership

func (f fakeMembers) Membership(_ context.Context, actorID, communityID uint) (community.Membership, error) {
	return f[[2]uint{actorID, communityID}], nil
}

func newResolver(instances *fakeInstances, members fakeMembers, downvotes bool) *trust.Resolver {
	return trust.NewResolver(instances, members, trust.SitePolicy{DownvotesEnabled: downvotes, LocalInstanceID: localInstance})
}

func TestResolveUpvoteWeight(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{byID: map[uint]actor.Instance{
		2: {ID: 2, Domain: "heavy.example", VoteWeight: 2.5},
		3: {ID: 3, Domain: "muted.example", VoteWeight: 0},
	}}
	r := newResolver(instances, fakeMembers{}, true)

	tests := []struct {
		name     string
		instance uint
		want     float64
	}{
		{name: "local", instance: localInstance, want: 1},
		{name: "weighted remote", instance: 2, want: 2.5},
		{name: "zero weight remote", instance: 3, want: 0},
		{name: "unknown remote", instance: 99, want: 1},
	}
	for _, tt := range tests {
		got, err := r.ResolveUpvoteWeight(t.Context(), actor.Actor{InstanceID: tt.instance})
		require.NoError(t, err, tt.name)
		assert.InDelta(t, tt.want, got, 1e-9, tt.name)
	}
}

func TestInstanceLookupsAreCached(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{byID: map[uint]actor.Instance{2: {ID: 2, VoteWeight: 3}}}
	r := newResolver(instances, fakeMembers{}, true)

	for i := 0; i < 5; i++ {
		_, err := r.ResolveUpvoteWeight(t.Context(), actor.Actor{InstanceID: 2})
		require.NoError(t, err)
		_, err = r.ResolveUpvoteWeight(t.Context(), actor.Actor{InstanceID: 77})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), instances.calls.Load())
}

func TestInstanceLookupErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	r := newResolver(&fakeInstances{err: boom}, fakeMembers{}, true)

	_, err := r.ResolveUpvoteWeight(t.Context(), actor.Actor{InstanceID: 2})
	assert.ErrorIs(t, err, boom)
}

// 查询在 gate 关闭前阻塞，并像真实数据库一样遵守 ctx 取消
type slowInstances struct {
	started chan struct{}
	gate    chan struct{}
	calls   atomic.Int32
}

func (s *slowInstances) Instance(ctx context.Context, id uint) (actor.Instance, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-s.gate:
		return actor.Instance{ID: id, VoteWeight: 2.5}, nil
	case <-ctx.Done():
		return actor.Instance{}, ctx.Err()
	}
}

func TestSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()
	instances := &slowInstances{started: make(chan struct{}), gate: make(chan struct{})}
	r := trust.NewResolver(instances, fakeMembers{}, trust.SitePolicy{DownvotesEnabled: true, LocalInstanceID: localInstance})

	firstCtx, cancel := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.ResolveUpvoteWeight(firstCtx, actor.Actor{InstanceID: 2})
		firstErr <- err
	}()
	<-instances.started

	type outcome struct {
		weight float64
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		w, err := r.ResolveUpvoteWeight(t.Context(), actor.Actor{InstanceID: 2})
		second <- outcome{w, err}
	}()
	// 让第二个调用方加入同一次查询
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(instances.gate)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.InDelta(t, 2.5, got.weight, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), instances.calls.Load())
}

func TestCanUpvote(t *testing.T) {
	t.Parallel()
	comm := community.Community{ID: 5, InstanceID: localInstance}
	members := fakeMembers{{3, 5}: {Member: true, Banned: true}}
	r := newResolver(&fakeInstances{}, members, true)

	tests := []struct {
		name  string
		actor actor.Actor
		want  trust.DenyReason
	}{
		{name: "regular", actor: actor.Actor{ID: 1, InstanceID: localInstance}, want: trust.Allowed},
		{name: "banned", actor: actor.Actor{ID: 2, Banned: true}, want: trust.DenyBanned},
		{name: "bot", actor: actor.Actor{ID: 2, Bot: true}, want: trust.DenyBot},
		{name: "community ban", actor: actor.Actor{ID: 3}, want: trust.DenyCommunityBan},
	}
	for _, tt := range tests {
		got, err := r.CanUpvote(t.Context(), tt.actor, comm)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestCanDownvote(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{byID: map[uint]actor.Instance{
		2: {ID: 2, Trusted: true},
		3: {ID: 3, Trusted: false},
	}}
	members := fakeMembers{
		{10, 5}: {Member: true},
		{11, 5}: {Member: true, Banned: true},
	}
	r := newResolver(instances, members, true)

	all := community.Community{ID: 5, InstanceID: localInstance, DownvoteAcceptMode: community.AcceptAll}
	localOnly := all
	localOnly.LocalOnly = true
	membersOnly := all
	membersOnly.DownvoteAcceptMode = community.AcceptMembers
	sameInstance := all
	sameInstance.DownvoteAcceptMode = community.AcceptInstance
	trusted := all
	trusted.DownvoteAcceptMode = community.AcceptTrusted
	remoteTrusted := trusted
	remoteTrusted.InstanceID = 3

	tests := []struct {
		name      string
		actor     actor.Actor
		community community.Community
		contentAt uint
		want      trust.DenyReason
	}{
		{name: "regular", actor: actor.Actor{ID: 1, InstanceID: localInstance}, community: all, want: trust.Allowed},
		{name: "banned", actor: actor.Actor{ID: 1, Banned: true}, community: all, want: trust.DenyBanned},
		{name: "bot", actor: actor.Actor{ID: 1, Bot: true}, community: all, want: trust.DenyBot},
		{name: "remote in local-only", actor: actor.Actor{ID: 1, InstanceID: 2}, community: localOnly, want: trust.DenyLocalOnly},
		{name: "local in local-only", actor: actor.Actor{ID: 1, InstanceID: localInstance}, community: localOnly, want: trust.Allowed},
		{name: "grumpy attitude", actor: actor.Actor{ID: 1, InstanceID: localInstance, Attitude: -0.41}, community: all, want: trust.DenyReputation},
		{name: "attitude at floor", actor: actor.Actor{ID: 1, InstanceID: localInstance, Attitude: -0.40}, community: all, want: trust.Allowed},
		{name: "low reputation", actor: actor.Actor{ID: 1, InstanceID: localInstance, Reputation: -10.5}, community: all, want: trust.DenyReputation},
		{name: "community ban", actor: actor.Actor{ID: 11, InstanceID: localInstance}, community: all, want: trust.DenyCommunityBan},
		{name: "members mode member", actor: actor.Actor{ID: 10, InstanceID: localInstance}, community: membersOnly, want: trust.Allowed},
		{name: "members mode outsider", actor: actor.Actor{ID: 12, InstanceID: localInstance}, community: membersOnly, want: trust.DenyCommunityPolicy},
		{name: "instance mode same", actor: actor.Actor{ID: 1, InstanceID: 2}, community: sameInstance, contentAt: 2, want: trust.Allowed},
		{name: "instance mode other", actor: actor.Actor{ID: 1, InstanceID: 2}, community: sameInstance, contentAt: localInstance, want: trust.DenyCommunityPolicy},
		{name: "trusted mode trusted remote", actor: actor.Actor{ID: 1, InstanceID: 2}, community: trusted, want: trust.Allowed},
		{name: "trusted mode untrusted remote", actor: actor.Actor{ID: 1, InstanceID: 3}, community: trusted, want: trust.DenyCommunityPolicy},
		{name: "trusted mode unknown remote", actor: actor.Actor{ID: 1, InstanceID: 9}, community: trusted, want: trust.DenyCommunityPolicy},
		{name: "trusted mode community's own instance", actor: actor.Actor{ID: 1, InstanceID: 3}, community: remoteTrusted, want: trust.Allowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CanDownvote(t.Context(), tt.actor, tt.community, tt.contentAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanDownvoteSiteDisabled(t *testing.T) {
	t.Parallel()
	r := newResolver(&fakeInstances{}, fakeMembers{}, false)

	got, err := r.CanDownvote(t.Context(), actor.Actor{ID: 1, InstanceID: localInstance}, community.Community{ID: 5}, localInstance)
	require.NoError(t, err)
	assert.Equal(t, trust.DenyDownvotesDisabled, got)
}

func TestHeuristicCannotVote(t *testing.T) {
	t.Parallel()
	h := trust.Heuristic{LocalInstanceID: localInstance}

	tests := []struct {
		name  string
		actor actor.Actor
		want  bool
	}{
		{name: "bot signature", actor: actor.Actor{InstanceID: 2, Username: "x7k2m9qa"}, want: true},
		{name: "local", actor: actor.Actor{InstanceID: localInstance, Username: "x7k2m9qa"}, want: false},
		{name: "has content", actor: actor.Actor{InstanceID: 2, Username: "x7k2m9qa", ContentCount: 1}, want: false},
		{name: "seven chars", actor: actor.Actor{InstanceID: 2, Username: "x7k2m9q"}, want: false},
		{name: "nine chars", actor: actor.Actor{InstanceID: 2, Username: "x7k2m9qab"}, want: false},
		{name: "eight runes", actor: actor.Actor{InstanceID: 2, Username: "用户用户用户用户"}, want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.CannotVote(tt.actor), tt.name)
	}
}
