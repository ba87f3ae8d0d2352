package services

import (
	"strings"
	"testing"
	"time"

	"vidsocial/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestResolveCategory_FindOrCreate(t *testing.T) {
	db := openTestDB(t)
	svc := NewCategoryService(db, testLogger())

	id, err := svc.ResolveCategory(db, "big tits")
	require.NoError(t, err)
	require.NotZero(t, id)

	again, err := svc.ResolveCategory(db, "Big Tits")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	var category models.Category
	require.NoError(t, db.First(&category, id).Error)
	assert.Equal(t, "Big Tits", category.Name)
	assert.Equal(t, "big-tits", category.Slug)
	assert.Equal(t, "Videos in the Big Tits category", category.Description)
	assert.True(t, category.IsActive)

	empty, err := svc.ResolveCategory(db, "!!!")
	require.NoError(t, err)
	assert.Zero(t, empty)
	assert.Equal(t, int64(1), countRows(t, db, &models.Category{}))
}

func TestResolveCategory_ConflictFallsBackToLookup(t *testing.T) {
	db := openTestDB(t)
	svc := NewCategoryService(db, testLogger())

	// 模拟并发写入：查询未命中之后、插入之前，另一方写入了同一 slug
	raced := false
	err := db.Callback().Create().Before("gorm:create").Register("test:race_slug", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "categories" {
			return
		}
		raced = true
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO categories (name, slug, description, video_count, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			"Racer", "amateur", "", 0, true, now, now,
		)
	})
	require.NoError(t, err)

	id, err := svc.ResolveCategory(db, "amateur")
	require.NoError(t, err)
	require.True(t, raced)

	var racer models.Category
	require.NoError(t, db.Where("slug = ?", "amateur").Take(&racer).Error)
	assert.Equal(t, racer.ID, id)
	assert.Equal(t, "Racer", racer.Name)
	assert.Equal(t, int64(1), countRows(t, db, &models.Category{}))
}

func TestResolveTag_SkipsInvalidNames(t *testing.T) {
	db := openTestDB(t)
	svc := NewCategoryService(db, testLogger())

	for _, name := range []string{"", "   ", "***", strings.Repeat("a", 101)} {
		id, err := svc.ResolveTag(db, name)
		require.NoError(t, err)
		assert.Zero(t, id, name)
	}

	id, err := svc.ResolveTag(db, strings.Repeat("a", 100))
	require.NoError(t, err)
	assert.NotZero(t, id)

	first, err := svc.ResolveTag(db, " Solo ")
	require.NoError(t, err)
	second, err := svc.ResolveTag(db, "solo")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var tag models.Tag
	require.NoError(t, db.First(&tag, first).Error)
	assert.Equal(t, "Solo", tag.Name)
}

func TestSyncTags_ReplacesSetAndRecounts(t *testing.T) {
	db := openTestDB(t)
	svc := NewCategoryService(db, testLogger())

	video := models.Video{ExternalID: "t1", Title: "Tagged"}
	require.NoError(t, db.Create(&video).Error)

	require.NoError(t, svc.SyncTags(db, video.ID, []string{"A-tag", "B-tag", "b-tag", "", "!!"}))
	var links []models.VideoTag
	require.NoError(t, db.Where("video_id = ?", video.ID).Find(&links).Error)
	assert.Len(t, links, 2)

	require.NoError(t, svc.SyncTags(db, video.ID, []string{"C-tag"}))
	var loaded models.Video
	require.NoError(t, db.Preload("Tags").First(&loaded, video.ID).Error)
	assert.Equal(t, []string{"c-tag"}, tagSlugs(loaded))

	counts := map[string]int{}
	var tags []models.Tag
	require.NoError(t, db.Find(&tags).Error)
	for _, tag := range tags {
		counts[tag.Slug] = tag.VideoCount
	}
	assert.Equal(t, map[string]int{"a-tag": 0, "b-tag": 0, "c-tag": 1}, counts)

	// 下架视频不计入
	require.NoError(t, db.Model(&models.Video{}).Where("id = ?", video.ID).UpdateColumn("is_removed", true).Error)
	require.NoError(t, svc.RecomputeTagCounts(db))
	var c models.Tag
	require.NoError(t, db.Where("slug = ?", "c-tag").Take(&c).Error)
	assert.Equal(t, 0, c.VideoCount)
}

func TestRecomputeAllCounts(t *testing.T) {
	db := openTestDB(t)
	svc := NewCategoryService(db, testLogger())

	catID, err := svc.ResolveCategory(db, "amateur")
	require.NoError(t, err)
	for _, id := range []string{"1", "2", "3"} {
		v := models.Video{ExternalID: id, Title: "V" + id, CategoryID: &catID}
		require.NoError(t, db.Create(&v).Error)
	}
	// default:true 的列创建时无法写入 false，需要单独更新
	require.NoError(t, db.Model(&models.Video{}).Where("external_id = ?", "2").UpdateColumn("is_active", false).Error)
	require.NoError(t, db.Model(&models.Video{}).Where("external_id = ?", "3").UpdateColumn("is_removed", true).Error)

	require.NoError(t, svc.RecomputeAllCounts(db))

	var category models.Category
	require.NoError(t, db.First(&category, catID).Error)
	assert.Equal(t, 1, category.VideoCount)
}

func TestListCategoriesAndPopularTags(t *testing.T) {
	db := openTestDB(t)
	svc := NewCategoryService(db, testLogger())

	require.NoError(t, db.Create(&[]models.Category{
		{Name: "Low", Slug: "low", VideoCount: 1, IsActive: true},
		{Name: "High", Slug: "high", VideoCount: 9, IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&[]models.Tag{
		{Name: "empty", Slug: "empty", VideoCount: 0, IsActive: true},
		{Name: "busy", Slug: "busy", VideoCount: 5, IsActive: true},
		{Name: "calm", Slug: "calm", VideoCount: 2, IsActive: true},
	}).Error)

	categories, err := svc.ListCategories()
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "high", categories[0].Slug)

	tags, err := svc.PopularTags(1)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "busy", tags[0].Slug)

	tags, err = svc.PopularTags(10)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}
