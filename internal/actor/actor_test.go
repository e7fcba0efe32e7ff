package actor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SlpAus/fedivote/internal/actor"
	"github.com/SlpAus/fedivote/internal/platform/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLocker struct {
	authors []uint
	err     error
}

func (l *recordingLocker) WithAuthor(_ context.Context, authorID uint, fn func() error) error {
	l.authors = append(l.authors, authorID)
	if l.err != nil {
		return l.err
	}
	return fn()
}

func TestRepositoryGet(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t, &actor.Actor{}, &actor.Instance{})
	repo := actor.NewRepository(db)

	require.NoError(t, db.Create(&actor.Actor{ID: 7, InstanceID: 1, Username: "alice"}).Error)
	require.NoError(t, db.Create(&actor.Instance{ID: 2, Domain: "remote.example", VoteWeight: 0.5}).Error)

	a, err := repo.Get(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
	assert.True(t, a.IsLocal(1))

	_, err = repo.Get(t.Context(), 8)
	assert.ErrorIs(t, err, actor.ErrNotFound)

	inst, err := repo.Instance(t.Context(), 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, inst.VoteWeight, 1e-9)

	_, err = repo.Instance(t.Context(), 3)
	assert.ErrorIs(t, err, actor.ErrInstanceNotFound)
}

func TestUsernameLengthCountsRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 8, actor.Actor{Username: "abcdefgh"}.UsernameLength())
	assert.Equal(t, 3, actor.Actor{Username: "名字们"}.UsernameLength())
}

func TestReputationPropagator(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t, &actor.Actor{})
	require.NoError(t, db.Create(&actor.Actor{ID: 1, InstanceID: 1, Username: "author", Reputation: 3}).Error)

	locker := &recordingLocker{}
	p := actor.NewReputationPropagator(locker)

	require.NoError(t, p.Apply(t.Context(), db, 1, 0))
	assert.Empty(t, locker.authors, "zero delta must not take the author lock")

	require.NoError(t, p.Apply(t.Context(), db, 1, 1.5))
	require.NoError(t, p.Apply(t.Context(), db, 1, -1))
	assert.Equal(t, []uint{1, 1}, locker.authors)

	var got actor.Actor
	require.NoError(t, db.First(&got, 1).Error)
	assert.InDelta(t, 3.5, got.Reputation, 1e-9)

	assert.ErrorIs(t, p.Apply(t.Context(), db, 99, 1), actor.ErrNotFound)
}

func TestReputationPropagatorLockFailure(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t, &actor.Actor{})
	require.NoError(t, db.Create(&actor.Actor{ID: 1, InstanceID: 1, Username: "author"}).Error)

	lockErr := errors.New("lock timeout")
	p := actor.NewReputationPropagator(&recordingLocker{err: lockErr})
	assert.ErrorIs(t, p.Apply(t.Context(), db, 1, 1), lockErr)

	var got actor.Actor
	require.NoError(t, db.First(&got, 1).Error)
	assert.Zero(t, got.Reputation)
}
