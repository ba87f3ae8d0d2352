package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"vidsocial/collector"
	"vidsocial/config"
	"vidsocial/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// fakeRemote 模拟远端目录接口
type fakeRemote struct {
	mu       sync.Mutex
	pages    map[int][]map[string]interface{}
	failPage map[int]int
	videos   map[string]map[string]interface{}
	removed  map[int][]interface{}
	requests []*http.Request
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages:    map[int][]map[string]interface{}{},
		failPage: map[int]int{},
		videos:   map[string]map[string]interface{}{},
		removed:  map[int][]interface{}{},
	}
}

func (f *fakeRemote) setPage(page int, records ...map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[page] = records
}

func (f *fakeRemote) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRemote) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	var payload interface{}
	switch r.URL.Path {
	case "/video/search/":
		if status, ok := f.failPage[page]; ok {
			w.WriteHeader(status)
			return
		}
		records := f.pages[page]
		if records == nil {
			records = []map[string]interface{}{}
		}
		payload = map[string]interface{}{
			"total_count": len(records),
			"page":        page,
			"videos":      records,
		}
	case "/video/id/":
		if v, ok := f.videos[r.URL.Query().Get("id")]; ok {
			payload = v
		} else {
			payload = []interface{}{}
		}
	case "/video/removed/":
		if status, ok := f.failPage[page]; ok {
			w.WriteHeader(status)
			return
		}
		ids := f.removed[page]
		if ids == nil {
			ids = []interface{}{}
		}
		payload = ids
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(payload)
}

type testEnv struct {
	db         *gorm.DB
	remote     *fakeRemote
	catalog    *collector.Collector
	categories *CategoryService
	videos     *VideoService
	removal    *RemovalService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	remote := newFakeRemote()
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	log := testLogger()
	catalog := collector.NewCollector(collector.Options{BaseURL: srv.URL}, log)
	categories := NewCategoryService(db, log)
	videos := NewVideoService(db, catalog, categories, VideoServiceConfig{
		Defaults:    testSyncOptions(),
		SiteName:    "VidSocial",
		SiteBaseURL: "https://vidsocial.test/",
	}, log)
	removal := NewRemovalService(db, catalog, categories, 0, log)

	return &testEnv{
		db:         db,
		remote:     remote,
		catalog:    catalog,
		categories: categories,
		videos:     videos,
		removal:    removal,
	}
}

func testSyncOptions() SyncOptions {
	return SyncOptions{
		Query:     "all",
		Order:     "latest",
		PerPage:   50,
		MaxPages:  10,
		MaxVideos: 1000,
		BatchSize: 10,
	}
}

func record(id, title, keywords string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"title":      title,
		"keywords":   keywords,
		"views":      100,
		"rate":       "4.2",
		"length_sec": 60,
		"embed":      "https://remote.test/embed/" + id,
	}
}

func findVideo(t *testing.T, db *gorm.DB, externalID string) models.Video {
	t.Helper()
	var video models.Video
	require.NoError(t, db.Preload("Category").Preload("Tags").
		Where("external_id = ?", externalID).Take(&video).Error)
	return video
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

// 分类计数与当前有效视频数一致
func assertCategoryCounts(t *testing.T, db *gorm.DB) {
	t.Helper()
	var categories []models.Category
	require.NoError(t, db.Find(&categories).Error)
	for _, c := range categories {
		var n int64
		require.NoError(t, db.Model(&models.Video{}).
			Where("category_id = ? AND is_active = ? AND is_removed = ?", c.ID, true, false).
			Count(&n).Error)
		require.Equal(t, n, int64(c.VideoCount), "category %s", c.Slug)
	}
}

func tagSlugs(video models.Video) []string {
	slugs := make([]string, 0, len(video.Tags))
	for _, tag := range video.Tags {
		slugs = append(slugs, tag.Slug)
	}
	return slugs
}
