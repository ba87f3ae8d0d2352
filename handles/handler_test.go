package handles

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vidsocial/collector"
	"vidsocial/config"
	"vidsocial/models"
	"vidsocial/services"
)

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type handlerEnv struct {
	db     *gorm.DB
	router *gin.Engine
	sync   *SyncHandler
}

func newHandlerEnv(t *testing.T, remote http.HandlerFunc) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := config.OpenDatabase(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "handles.db"),
		LogLevel: "silent",
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	catalog := collector.NewCollector(collector.Options{BaseURL: srv.URL}, log)
	categories := services.NewCategoryService(db, log)
	videos := services.NewVideoService(db, catalog, categories, services.VideoServiceConfig{
		Defaults:    services.DefaultSyncOptions(),
		SiteName:    "VidSocial",
		SiteBaseURL: "http://localhost:8080",
	}, log)
	removal := services.NewRemovalService(db, catalog, categories, 0, log)

	videoHandler := NewVideoHandler(db, log)
	categoryHandler := NewCategoryHandler(categories)
	syncHandler := NewSyncHandler(context.Background(), db, videos, removal, log)

	r := gin.New()
	r.GET("/videos", videoHandler.ListVideos)
	r.GET("/videos/:slug/:id", videoHandler.GetVideo)
	r.GET("/search", videoHandler.SearchVideos)
	r.GET("/embed/:id", videoHandler.GetEmbed)
	r.GET("/stats", videoHandler.GetStats)
	r.GET("/categories", categoryHandler.GetCategories)
	r.GET("/tags/popular", categoryHandler.GetPopularTags)
	r.POST("/sync", syncHandler.BulkSync)
	r.POST("/sync/category", syncHandler.SyncCategory)
	r.POST("/sync/video", syncHandler.SyncVideo)
	r.POST("/sync/removed", syncHandler.SyncRemoved)
	r.GET("/sync-logs", syncHandler.GetSyncLogs)

	return &handlerEnv{db: db, router: r, sync: syncHandler}
}

func (e *handlerEnv) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func emptyRemote(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`[]`))
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	category := models.Category{Name: "Amateur", Slug: "amateur", IsActive: true}
	require.NoError(t, db.Create(&category).Error)

	videos := []models.Video{
		{ExternalID: "1", Title: "Same Name", Slug: "same-name", Description: "first upload", Views: 10, CategoryID: &category.ID},
		{ExternalID: "2", Title: "Same Name", Slug: "same-name", Description: "second upload", Views: 20},
		{ExternalID: "3", Title: "Gone", Slug: "gone", Description: "removed upload", EmbedURL: "https://remote.test/embed/3"},
	}
	for i := range videos {
		require.NoError(t, db.Create(&videos[i]).Error)
	}
	require.NoError(t, db.Model(&models.Video{}).Where("external_id = ?", "3").UpdateColumn("is_removed", true).Error)
}

func TestGetVideo_ResolvesBySlugAndID(t *testing.T) {
	env := newHandlerEnv(t, emptyRemote)
	seedCatalog(t, env.db)

	w, resp := env.do(t, http.MethodGet, "/videos/same-name/2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var video models.Video
	require.NoError(t, json.Unmarshal(resp.Data, &video))
	assert.Equal(t, "2", video.ExternalID)
	assert.Equal(t, int64(21), video.Views)

	var stored models.Video
	require.NoError(t, env.db.Where("external_id = ?", "2").Take(&stored).Error)
	assert.Equal(t, int64(21), stored.Views)

	w, _ = env.do(t, http.MethodGet, "/videos/same-name/9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 已下架视频不可见
	w, _ = env.do(t, http.MethodGet, "/videos/gone/3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListVideos(t *testing.T) {
	env := newHandlerEnv(t, emptyRemote)
	seedCatalog(t, env.db)

	w, resp := env.do(t, http.MethodGet, "/videos?per_page=500", "")
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Videos     []models.Video `json:"videos"`
		Pagination pagination     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Len(t, data.Videos, 2)
	assert.Equal(t, int64(2), data.Pagination.Total)
	assert.Equal(t, maxPerPage, data.Pagination.PerPage)

	_, resp = env.do(t, http.MethodGet, "/videos?category=amateur", "")
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Len(t, data.Videos, 1)
	assert.Equal(t, "1", data.Videos[0].ExternalID)
}

func TestSearchVideos(t *testing.T) {
	env := newHandlerEnv(t, emptyRemote)
	seedCatalog(t, env.db)

	w, resp := env.do(t, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Query parameter required", resp.Msg)

	w, resp = env.do(t, http.MethodGet, "/search?q=upload", "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Results []models.Video `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Len(t, data.Results, 2)
	assert.Equal(t, "2", data.Results[0].ExternalID)
}

func TestGetEmbedAndStats(t *testing.T) {
	env := newHandlerEnv(t, emptyRemote)
	seedCatalog(t, env.db)

	w, _ := env.do(t, http.MethodGet, "/embed/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodGet, "/embed/3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp := env.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]int64
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, int64(3), stats["total"])
	assert.Equal(t, int64(2), stats["active"])
	assert.Equal(t, int64(1), stats["removed"])
}

func TestSyncVideoEndpoint(t *testing.T) {
	env := newHandlerEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "42":
			w.Write([]byte(`{"id":"42","title":"Cool <b>Clip</b>!!","keywords":"amateur fun"}`))
		case "broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`[]`))
		}
	})

	w, _ := env.do(t, http.MethodPost, "/sync/video", `{"id":"42"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/videos/cool-clip/42", "")
	require.Equal(t, http.StatusOK, w.Code, resp.Msg)

	w, _ = env.do(t, http.MethodPost, "/sync/video", `{"id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, "/sync/video", `{"id":"broken"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w, _ = env.do(t, http.MethodPost, "/sync/video", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = env.do(t, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	var categories []models.Category
	require.NoError(t, json.Unmarshal(resp.Data, &categories))
	require.Len(t, categories, 1)
	assert.Equal(t, 1, categories[0].VideoCount)

	w, resp = env.do(t, http.MethodGet, "/tags/popular", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tags []models.Tag
	require.NoError(t, json.Unmarshal(resp.Data, &tags))
	assert.Len(t, tags, 2)
}

func TestBulkSyncEndpoint_RunsInBackground(t *testing.T) {
	env := newHandlerEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(`{"videos":[{"id":"a","title":"Background"}]}`))
			return
		}
		w.Write([]byte(`{"videos":[]}`))
	})

	w, _ := env.do(t, http.MethodPost, "/sync", `{"max_pages":2,"batch_size":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	env.sync.Wait()

	var count int64
	require.NoError(t, env.db.Model(&models.Video{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	w, resp := env.do(t, http.MethodGet, "/sync-logs?mode=bulk", "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		List    []models.SyncLog `json:"list"`
		Total   int64            `json:"total"`
		Running bool             `json:"running"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, int64(1), data.Total)
	assert.False(t, data.Running)
	require.Len(t, data.List, 1)
	assert.Equal(t, models.SyncStatusSuccess, data.List[0].Status)
	assert.Equal(t, 1, data.List[0].NewCount)
}

func TestSyncHandler_RejectsConcurrentJobs(t *testing.T) {
	release := make(chan struct{})
	env := newHandlerEnv(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`[]`))
	})

	w, _ := env.do(t, http.MethodPost, "/sync/removed", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/sync/category", `{"category":"amateur"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 单条同步同样受运行标记约束
	w, _ = env.do(t, http.MethodPost, "/sync/video", `{"id":"abc"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	env.sync.Wait()

	w, _ = env.do(t, http.MethodPost, "/sync/category", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 单条同步结束后释放运行标记
	w, _ = env.do(t, http.MethodPost, "/sync/video", `{"id":"abc"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = env.do(t, http.MethodPost, "/sync/removed", "")
	assert.Equal(t, http.StatusOK, w.Code)
	env.sync.Wait()
}

func TestStatsAndSyncLogs_DatabaseErrors(t *testing.T) {
	env := newHandlerEnv(t, emptyRemote)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, _ := env.do(t, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w, _ = env.do(t, http.MethodGet, "/sync-logs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBulkSyncRequestOptions(t *testing.T) {
	defaults := services.DefaultSyncOptions()
	opts := bulkSyncRequest{Order: "top-rated", MaxPages: 3}.options(defaults)

	assert.Equal(t, "top-rated", opts.Order)
	assert.Equal(t, 3, opts.MaxPages)
	assert.Equal(t, defaults.Query, opts.Query)
	assert.Equal(t, defaults.PerPage, opts.PerPage)
	assert.Equal(t, defaults.BatchSize, opts.BatchSize)
}
