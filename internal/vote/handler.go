package vote

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/pkg/retry"
	"github.com/gin-gonic/gin"
)

// 可重试错误的建议等待秒数
const retryAfterSeconds = 1

// VoteRequestBody 定义了提交投票时请求体的JSON结构
type VoteRequestBody struct {
	ActorID     uint         `json:"actor_id" binding:"required"`
	ContentKind content.Kind `json:"content_kind" binding:"required"`
	ContentID   uint         `json:"content_id" binding:"required"`
	Direction   Direction    `json:"direction" binding:"required"`
}

// ContentRequestBody 定义了登记新内容时请求体的JSON结构
type ContentRequestBody struct {
	Kind        content.Kind `json:"kind" binding:"required"`
	ID          uint         `json:"id" binding:"required"`
	AuthorID    uint         `json:"author_id" binding:"required"`
	CommunityID uint         `json:"community_id" binding:"required"`
	InstanceID  uint         `json:"instance_id" binding:"required"`
	PostID      uint         `json:"post_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Handler 把投票引擎暴露为内部HTTP接口
type Handler struct {
	engine *Engine
	retry  retry.Options
}

// NewHandler 创建投票接口
func NewHandler(engine *Engine, opts retry.Options) *Handler {
	return &Handler{engine: engine, retry: opts}
}

// SubmitVote 处理投票请求
func (h *Handler) SubmitVote(c *gin.Context) {
	var body VoteRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	res, err := h.engine.VoteWithRetry(c.Request.Context(), Request{
		ActorID:     body.ActorID,
		ContentKind: body.ContentKind,
		ContentID:   body.ContentID,
		Direction:   body.Direction,
	}, h.retry)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Denied != "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "投票被拒绝", "reason": res.Denied})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"old_state": res.OldState,
		"new_state": res.NewState,
		"content":   res.Content,
	})
}

// RegisterContent 处理新内容登记
func (h *Handler) RegisterContent(c *gin.Context) {
	var body ContentRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	if body.Kind == content.KindReply && body.PostID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "回复必须指定 post_id"})
		return
	}

	created, err := h.engine.RegisterContent(c.Request.Context(), content.Content{
		Kind:        body.Kind,
		ID:          body.ID,
		AuthorID:    body.AuthorID,
		CommunityID: body.CommunityID,
		InstanceID:  body.InstanceID,
		PostID:      body.PostID,
		CreatedAt:   body.CreatedAt,
	})
	if err != nil {
		if errors.Is(err, content.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidDirection), errors.Is(err, content.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case IsRetryable(err):
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "服务繁忙，请稍后重试"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "处理投票失败: " + err.Error()})
	}
}
