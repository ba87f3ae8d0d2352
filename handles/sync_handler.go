package handles

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidsocial/collector"
	"vidsocial/models"
	"vidsocial/services"
	"vidsocial/utils"
)

// SyncHandler 同步管理接口
// 同一时间只允许一个同步任务，任务在后台运行
type SyncHandler struct {
	ctx     context.Context
	db      *gorm.DB
	videos  *services.VideoService
	removal *services.RemovalService
	log     *logrus.Entry

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewSyncHandler 创建同步处理器，ctx 取消时后台任务在分页之间停止
func NewSyncHandler(ctx context.Context, db *gorm.DB, videos *services.VideoService, removal *services.RemovalService, log *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		ctx:     ctx,
		db:      db,
		videos:  videos,
		removal: removal,
		log:     log.WithField("component", "sync_handler"),
	}
}

// Wait 等待后台任务结束
func (h *SyncHandler) Wait() {
	h.wg.Wait()
}

// 启动后台任务，已有任务运行时返回 false
func (h *SyncHandler) launch(name string, job func(ctx context.Context)) bool {
	if !h.running.CompareAndSwap(false, true) {
		return false
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.running.Store(false)
		h.log.WithField("job", name).Info("同步任务开始")
		job(h.ctx)
	}()
	return true
}

type bulkSyncRequest struct {
	Query          string `json:"query"`
	Order          string `json:"order"`
	PerPage        int    `json:"per_page"`
	MaxPages       int    `json:"max_pages"`
	MaxVideos      int    `json:"max_videos"`
	CategoryFilter string `json:"category_filter"`
	BatchSize      int    `json:"batch_size"`
}

// 未提供的字段使用默认值
func (r bulkSyncRequest) options(defaults services.SyncOptions) services.SyncOptions {
	opts := defaults
	if r.Query != "" {
		opts.Query = r.Query
	}
	if r.Order != "" {
		opts.Order = r.Order
	}
	if r.PerPage != 0 {
		opts.PerPage = r.PerPage
	}
	if r.MaxPages != 0 {
		opts.MaxPages = r.MaxPages
	}
	if r.MaxVideos != 0 {
		opts.MaxVideos = r.MaxVideos
	}
	if r.CategoryFilter != "" {
		opts.CategoryFilter = r.CategoryFilter
	}
	if r.BatchSize != 0 {
		opts.BatchSize = r.BatchSize
	}
	return opts
}

// BulkSync 触发批量同步
// POST /api/admin/sync
func (h *SyncHandler) BulkSync(c *gin.Context) {
	var req bulkSyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, http.StatusBadRequest, "无效的请求数据")
			return
		}
	}
	opts := req.options(h.videos.Defaults())

	started := h.launch(models.SyncModeBulk, func(ctx context.Context) {
		if _, err := h.videos.BulkSync(ctx, opts); err != nil {
			h.log.WithError(err).Error("批量同步失败")
		}
	})
	if !started {
		utils.Error(c, http.StatusConflict, "已有同步任务在运行")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "同步任务已启动",
		"data": gin.H{
			"options":    opts,
			"started_at": time.Now(),
		},
	})
}

// SyncCategory 按分类同步
// POST /api/admin/sync/category
func (h *SyncHandler) SyncCategory(c *gin.Context) {
	var req struct {
		Category  string `json:"category" binding:"required"`
		MaxVideos int    `json:"max_videos"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "无效的请求数据")
		return
	}

	started := h.launch(models.SyncModeCategory, func(ctx context.Context) {
		if _, err := h.videos.SyncByCategory(ctx, req.Category, req.MaxVideos); err != nil {
			h.log.WithError(err).Error("分类同步失败")
		}
	})
	if !started {
		utils.Error(c, http.StatusConflict, "已有同步任务在运行")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "同步任务已启动",
		"data": gin.H{
			"category":   req.Category,
			"max_videos": req.MaxVideos,
			"started_at": time.Now(),
		},
	})
}

// SyncVideo 同步单个视频（同步执行，与后台任务共用运行标记）
// POST /api/admin/sync/video
func (h *SyncHandler) SyncVideo(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "无效的请求数据")
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		utils.Error(c, http.StatusConflict, "已有同步任务在运行")
		return
	}
	defer h.running.Store(false)

	stats, err := h.videos.SyncVideo(c.Request.Context(), req.ID)
	switch {
	case errors.Is(err, collector.ErrNotFound):
		utils.Error(c, http.StatusNotFound, "远端视频不存在")
		return
	case errors.Is(err, collector.ErrRemoteUnavailable), errors.Is(err, collector.ErrMalformedResponse):
		utils.Error(c, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		utils.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	utils.Success(c, stats)
}

// SyncRemoved 触发下架对账
// POST /api/admin/sync/removed
func (h *SyncHandler) SyncRemoved(c *gin.Context) {
	started := h.launch(models.SyncModeRemoved, func(ctx context.Context) {
		h.removal.SyncRemoved(ctx)
	})
	if !started {
		utils.Error(c, http.StatusConflict, "已有同步任务在运行")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "下架对账已启动",
		"data": gin.H{
			"started_at": time.Now(),
		},
	})
}

// GetSyncLogs 获取同步日志
// GET /api/admin/sync-logs?page=1&page_size=20
func (h *SyncHandler) GetSyncLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := h.db.Model(&models.SyncLog{})
	if mode := c.Query("mode"); mode != "" {
		query = query.Where("mode = ?", mode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	var logs []models.SyncLog
	err := query.Order("start_time DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&logs).Error
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.Success(c, gin.H{
		"list":      logs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"running":   h.running.Load(),
	})
}
