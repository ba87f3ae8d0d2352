package handles

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidsocial/models"
	"vidsocial/utils"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// VideoHandler 视频只读接口
type VideoHandler struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewVideoHandler 创建视频处理器
func NewVideoHandler(db *gorm.DB, log *logrus.Logger) *VideoHandler {
	return &VideoHandler{
		db:  db,
		log: log.WithField("component", "video_handler"),
	}
}

type pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
}

func parsePagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func newPagination(page, perPage int, total int64) pagination {
	return pagination{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   int(math.Ceil(float64(total) / float64(perPage))),
	}
}

// 有效且未下架的视频
func (h *VideoHandler) visible() *gorm.DB {
	return h.db.Model(&models.Video{}).Where("is_active = ? AND is_removed = ?", true, false)
}

// ListVideos 视频列表，可按分类 slug 筛选
// GET /api/v1/videos?page=1&per_page=20&category=amateur
func (h *VideoHandler) ListVideos(c *gin.Context) {
	page, perPage := parsePagination(c)

	query := h.visible()
	if category := c.Query("category"); category != "" {
		query = query.Where("category_id IN (?)",
			h.db.Model(&models.Category{}).Select("id").Where("slug = ?", category))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	var videos []models.Video
	err := query.Order("added_date DESC, id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&videos).Error
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.Success(c, gin.H{
		"videos":     videos,
		"pagination": newPagination(page, perPage, total),
	})
}

// SearchVideos 按标题和描述搜索
// GET /api/v1/search?q=xxx
func (h *VideoHandler) SearchVideos(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		utils.Error(c, http.StatusBadRequest, "Query parameter required")
		return
	}
	page, perPage := parsePagination(c)

	like := "%" + q + "%"
	query := h.visible().Where("title LIKE ? OR description LIKE ?", like, like)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	var videos []models.Video
	err := query.Order("views DESC, id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&videos).Error
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.Success(c, gin.H{
		"results":    videos,
		"query":      q,
		"pagination": newPagination(page, perPage, total),
	})
}

// FindBySlugAndID slug 不唯一，必须同时匹配 external_id
func (h *VideoHandler) FindBySlugAndID(slug, externalID string) (*models.Video, error) {
	var video models.Video
	err := h.visible().
		Preload("Category").
		Preload("Tags").
		Where("slug = ? AND external_id = ?", slug, externalID).
		First(&video).Error
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// IncrementViews 播放次数加一
func (h *VideoHandler) IncrementViews(id uint) error {
	return h.db.Model(&models.Video{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error
}

// GetVideo 视频详情，访问时播放次数加一
// GET /api/v1/videos/:slug/:id
func (h *VideoHandler) GetVideo(c *gin.Context) {
	video, err := h.FindBySlugAndID(c.Param("slug"), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "视频不存在")
		return
	}
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.IncrementViews(video.ID); err != nil {
		h.log.WithError(err).WithField("video_id", video.ID).Warn("更新播放次数失败")
	} else {
		video.Views++
	}

	utils.Success(c, video)
}

// GetEmbed 嵌入播放信息
// GET /embed/:id
func (h *VideoHandler) GetEmbed(c *gin.Context) {
	var video models.Video
	err := h.visible().Where("external_id = ?", c.Param("id")).First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "视频不存在")
		return
	}
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.Success(c, gin.H{
		"external_id": video.ExternalID,
		"title":       video.Title,
		"embed_url":   video.EmbedURL,
		"thumb_url":   video.ThumbURL,
		"duration":    video.Duration,
	})
}

// GetStats 视频统计信息
func (h *VideoHandler) GetStats(c *gin.Context) {
	var total, active, removed, categories, tags int64
	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{h.db.Model(&models.Video{}), &total},
		{h.visible(), &active},
		{h.db.Model(&models.Video{}).Where("is_removed = ?", true), &removed},
		{h.db.Model(&models.Category{}), &categories},
		{h.db.Model(&models.Tag{}), &tags},
	}
	for _, item := range counts {
		if err := item.query.Count(item.dest).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
	}

	utils.Success(c, gin.H{
		"total":      total,
		"active":     active,
		"removed":    removed,
		"categories": categories,
		"tags":       tags,
	})
}
