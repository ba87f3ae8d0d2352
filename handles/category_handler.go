package handles

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vidsocial/services"
	"vidsocial/utils"
)

// CategoryHandler 分类和标签接口
type CategoryHandler struct {
	categories *services.CategoryService
}

// NewCategoryHandler 创建分类处理器
func NewCategoryHandler(categories *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// GetCategories 获取分类列表
func (h *CategoryHandler) GetCategories(c *gin.Context) {
	categories, err := h.categories.ListCategories()
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "获取分类失败")
		return
	}
	utils.Success(c, categories)
}

// GetPopularTags 获取热门标签
// GET /api/v1/tags/popular?limit=50
func (h *CategoryHandler) GetPopularTags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	tags, err := h.categories.PopularTags(limit)
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "获取标签失败")
		return
	}
	utils.Success(c, tags)
}
