package api

import (
	"net/http"

	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/internal/platform/health"
	"github.com/SlpAus/fedivote/internal/vote"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 汇总各模块对外暴露的接口
type Handlers struct {
	Votes    *vote.Handler
	Contents *content.Handler
	Status   *health.Status
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		// Redis降级不影响投票，只影响列表查询
		c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": h.Status.State().String()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		// 投票与内容登记，由联邦层和本站前端调用
		api.POST("/votes", h.Votes.SubmitVote)
		api.POST("/contents", h.Votes.RegisterContent)

		// 列表查询
		api.GET("/communities/:id/posts", h.Contents.ListPosts)
		api.GET("/posts/:id/replies", h.Contents.ListReplies)
	}
}
