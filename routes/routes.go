package routes

import (
	"time"

	"vidsocial/handles"
	"vidsocial/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers 路由依赖
type Handlers struct {
	Videos     *handles.VideoHandler
	Categories *handles.CategoryHandler
	Sync       *handles.SyncHandler
}

// Limits 限流参数
type Limits struct {
	Limiter  *middleware.RateLimiter
	APIMax   int
	EmbedMax int
	Window   time.Duration
}

// SetupRoutes 设置路由
func SetupRoutes(r *gin.Engine, h Handlers, limits Limits, adminToken string) {
	// 健康检查
	r.GET("/api/health", healthCheck)

	// ============ 公开API（限流）============
	public := r.Group("/api/v1")
	public.Use(middleware.RateLimit(limits.Limiter, "api_", limits.APIMax, limits.Window))
	{
		public.GET("/videos", h.Videos.ListVideos)
		public.GET("/videos/:slug/:id", h.Videos.GetVideo)
		public.GET("/search", h.Videos.SearchVideos)
		public.GET("/categories", h.Categories.GetCategories)
		public.GET("/tags/popular", h.Categories.GetPopularTags)
	}

	// ============ 嵌入播放（单独限流）============
	embed := r.Group("/embed")
	embed.Use(middleware.RateLimit(limits.Limiter, "embed_", limits.EmbedMax, limits.Window))
	{
		embed.GET("/:id", h.Videos.GetEmbed)
	}

	// ============ 管理员API（需要认证）============
	admin := r.Group("/api/admin")
	admin.Use(middleware.AdminAuth(adminToken))
	{
		// 【同步管理】
		admin.POST("/sync", h.Sync.BulkSync)
		admin.POST("/sync/category", h.Sync.SyncCategory)
		admin.POST("/sync/video", h.Sync.SyncVideo)
		admin.POST("/sync/removed", h.Sync.SyncRemoved)
		admin.GET("/sync-logs", h.Sync.GetSyncLogs)

		// 【统计】
		admin.GET("/stats", h.Videos.GetStats)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"message": "Server is running",
	})
}
