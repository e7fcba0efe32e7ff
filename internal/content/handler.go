package content

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler 提供基于排序索引的列表查询
type Handler struct {
	index *RankIndex
	repo  *Repository
}

// NewHandler 创建列表接口
func NewHandler(index *RankIndex, repo *Repository) *Handler {
	return &Handler{index: index, repo: repo}
}

// ListPosts 返回社区内按 hot 或 top 排序的帖子
func (h *Handler) ListPosts(c *gin.Context) {
	communityID, ok := parseID(c)
	if !ok {
		return
	}
	sort := Sort(c.DefaultQuery("sort", string(SortHot)))
	if sort != SortHot && sort != SortTop {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort 只能是 hot 或 top"})
		return
	}
	offset, limit := page(c)

	ids, err := h.index.Posts(c.Request.Context(), communityID, sort, offset, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "排序索引暂不可用"})
		return
	}
	h.respond(c, KindPost, ids)
}

// ListReplies 返回帖子下按 wilson 下界排序的回复
func (h *Handler) ListReplies(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}
	offset, limit := page(c)

	ids, err := h.index.Replies(c.Request.Context(), postID, offset, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "排序索引暂不可用"})
		return
	}
	h.respond(c, KindReply, ids)
}

func (h *Handler) respond(c *gin.Context, kind Kind, ids []uint) {
	items, err := h.load(c.Request.Context(), kind, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取内容失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// load 保持索引给出的顺序
func (h *Handler) load(ctx context.Context, kind Kind, ids []uint) ([]Content, error) {
	if len(ids) == 0 {
		return []Content{}, nil
	}
	var rows []Content
	if err := h.repo.db.WithContext(ctx).Where("kind = ? AND id IN ?", kind, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]Content, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	items := make([]Content, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			items = append(items, r)
		}
	}
	return items, nil
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的ID"})
		return 0, false
	}
	return uint(id), true
}

func page(c *gin.Context) (offset, limit int64) {
	offset, _ = strconv.ParseInt(c.Query("offset"), 10, 64)
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.ParseInt(c.Query("limit"), 10, 64)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}
