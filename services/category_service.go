package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"vidsocial/models"
	"vidsocial/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxTagNameLength = 100

// CategoryService 分类/标签解析服务
// 写操作接收调用方的事务，读操作使用服务自身的连接
type CategoryService struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewCategoryService 创建分类服务
func NewCategoryService(db *gorm.DB, log *logrus.Logger) *CategoryService {
	return &CategoryService{
		db:  db,
		log: log.WithField("component", "category"),
	}
}

// ResolveCategory 按 slug 查找分类，不存在则创建，返回分类ID
// slug 为空时返回 0
func (s *CategoryService) ResolveCategory(tx *gorm.DB, name string) (uint, error) {
	slug := utils.Slugify(name)
	if slug == "" {
		return 0, nil
	}

	display := utils.TitleCase(strings.TrimSpace(name))
	category := models.Category{
		Name:        display,
		Slug:        slug,
		Description: fmt.Sprintf("Videos in the %s category", display),
		IsActive:    true,
	}
	id, err := findOrCreateBySlug(tx, slug, &category, func(c *models.Category) uint { return c.ID })
	if err != nil {
		return 0, fmt.Errorf("解析分类 %s 失败: %w", slug, err)
	}
	return id, nil
}

// ResolveTag 按 slug 查找标签，不存在则创建
// 名称为空、超过100个字符或无法生成 slug 时返回 0，不报错
func (s *CategoryService) ResolveTag(tx *gorm.DB, name string) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxTagNameLength {
		return 0, nil
	}
	slug := utils.Slugify(name)
	if slug == "" {
		return 0, nil
	}

	tag := models.Tag{
		Name:     name,
		Slug:     slug,
		IsActive: true,
	}
	id, err := findOrCreateBySlug(tx, slug, &tag, func(t *models.Tag) uint { return t.ID })
	if err != nil {
		return 0, fmt.Errorf("解析标签 %s 失败: %w", slug, err)
	}
	return id, nil
}

// 先查后插；插入遇到唯一键冲突时不报错，重新按 slug 查询
func findOrCreateBySlug[T any](tx *gorm.DB, slug string, row *T, id func(*T) uint) (uint, error) {
	var existing T
	result := tx.Where("slug = ?", slug).Limit(1).Find(&existing)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		return id(&existing), nil
	}

	result = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 && id(row) != 0 {
		return id(row), nil
	}

	if err := tx.Where("slug = ?", slug).Take(&existing).Error; err != nil {
		return 0, err
	}
	return id(&existing), nil
}

// SyncTags 整体替换视频的标签，并重算所有标签的视频数
func (s *CategoryService) SyncTags(tx *gorm.DB, videoID uint, keywords []string) error {
	if err := tx.Where("video_id = ?", videoID).Delete(&models.VideoTag{}).Error; err != nil {
		return fmt.Errorf("删除视频标签失败: %w", err)
	}

	links := make([]models.VideoTag, 0, len(keywords))
	seen := make(map[uint]struct{}, len(keywords))
	for _, keyword := range keywords {
		tagID, err := s.ResolveTag(tx, keyword)
		if err != nil {
			return err
		}
		if tagID == 0 {
			s.log.WithField("keyword", keyword).Debug("跳过无效标签")
			continue
		}
		if _, ok := seen[tagID]; ok {
			continue
		}
		seen[tagID] = struct{}{}
		links = append(links, models.VideoTag{VideoID: videoID, TagID: tagID})
	}

	if len(links) > 0 {
		if err := tx.Create(&links).Error; err != nil {
			return fmt.Errorf("写入视频标签失败: %w", err)
		}
	}

	return s.RecomputeTagCounts(tx)
}

// RecomputeTagCounts 全量重算标签视频数
func (s *CategoryService) RecomputeTagCounts(tx *gorm.DB) error {
	err := tx.Exec(`UPDATE tags SET video_count = (
		SELECT COUNT(DISTINCT vt.video_id) FROM video_tags vt
		JOIN videos v ON v.id = vt.video_id
		WHERE vt.tag_id = tags.id AND v.is_active = ? AND v.is_removed = ?
	)`, true, false).Error
	if err != nil {
		return fmt.Errorf("重算标签视频数失败: %w", err)
	}
	return nil
}

// RecomputeCategoryCount 重算单个分类的视频数
func (s *CategoryService) RecomputeCategoryCount(tx *gorm.DB, categoryID uint) error {
	var count int64
	err := tx.Model(&models.Video{}).
		Where("category_id = ? AND is_active = ? AND is_removed = ?", categoryID, true, false).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("统计分类视频数失败: %w", err)
	}

	err = tx.Model(&models.Category{}).
		Where("id = ?", categoryID).
		UpdateColumn("video_count", count).Error
	if err != nil {
		return fmt.Errorf("更新分类视频数失败: %w", err)
	}
	return nil
}

// RecomputeAllCounts 重算所有分类和标签的视频数
func (s *CategoryService) RecomputeAllCounts(tx *gorm.DB) error {
	err := tx.Exec(`UPDATE categories SET video_count = (
		SELECT COUNT(*) FROM videos v
		WHERE v.category_id = categories.id AND v.is_active = ? AND v.is_removed = ?
	)`, true, false).Error
	if err != nil {
		return fmt.Errorf("重算分类视频数失败: %w", err)
	}
	return s.RecomputeTagCounts(tx)
}

// ListCategories 获取有效分类，按视频数降序
func (s *CategoryService) ListCategories() ([]models.Category, error) {
	var categories []models.Category
	err := s.db.Where("is_active = ?", true).
		Order("video_count DESC, name ASC").
		Find(&categories).Error
	return categories, err
}

// PopularTags 获取热门标签
func (s *CategoryService) PopularTags(limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.Where("is_active = ? AND video_count > 0", true).
		Order("video_count DESC, name ASC").
		Limit(limit).
		Find(&tags).Error
	return tags, err
}
