package vote_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/internal/vote"
	"github.com/SlpAus/fedivote/pkg/retry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := vote.NewHandler(f.engine, retry.Options{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	router.POST("/votes", h.SubmitVote)
	router.POST("/contents", h.RegisterContent)
	return router
}

func post(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitVoteHandler(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	router := newRouter(f)

	w := post(t, router, "/votes", gin.H{"actor_id": localVoterA, "content_kind": "post", "content_id": postID, "direction": "upvote"})
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		OldState vote.State      `json:"old_state"`
		NewState vote.State      `json:"new_state"`
		Content  content.Content `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, vote.StateUp, body.NewState)
	assert.Equal(t, 2, body.Content.UpVotes)

	w = post(t, router, "/votes", gin.H{"actor_id": bannedVoter, "content_kind": "post", "content_id": postID, "direction": "upvote"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "banned")

	w = post(t, router, "/votes", gin.H{"actor_id": localVoterA, "content_kind": "post", "content_id": postID, "direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, router, "/votes", gin.H{"actor_id": localVoterA, "content_kind": "post", "content_id": 404, "direction": "upvote"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(t, router, "/votes", gin.H{"actor_id": localVoterA})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitVoteHandlerLockTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(o *fixtureOptions) { o.wait = 10 * time.Millisecond })
	router := newRouter(f)

	held, err := f.provider.Acquire(t.Context(), content.LockKey(content.KindPost, postID), time.Minute, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release(t.Context()) })

	w := post(t, router, "/votes", gin.H{"actor_id": localVoterA, "content_kind": "post", "content_id": postID, "direction": "upvote"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRegisterContentHandler(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	router := newRouter(f)

	w := post(t, router, "/contents", gin.H{"kind": "reply", "id": 5, "author_id": authorID, "community_id": communityID, "instance_id": localInstance, "post_id": postID})
	require.Equal(t, http.StatusCreated, w.Code)
	var created content.Content
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 1, created.UpVotes)
	assert.Equal(t, 1.0, created.Score)

	w = post(t, router, "/contents", gin.H{"kind": "reply", "id": 5, "author_id": authorID, "community_id": communityID, "instance_id": localInstance, "post_id": postID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = post(t, router, "/contents", gin.H{"kind": "reply", "id": 6, "author_id": authorID, "community_id": communityID, "instance_id": localInstance})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
