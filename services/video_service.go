package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidsocial/collector"
	"vidsocial/models"
	"vidsocial/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrConfigurationInvalid 同步参数不合法，运行开始前返回
	ErrConfigurationInvalid = errors.New("同步参数不合法")
	// ErrRecordWriteFailed 单条记录写入失败，批次继续
	ErrRecordWriteFailed = errors.New("记录写入失败")
	// ErrBatchCommitFailed 事务失败，整批回滚
	ErrBatchCommitFailed = errors.New("批次提交失败")
)

const defaultCategorySyncMax = 1000

// SyncState 流水线状态
type SyncState string

const (
	StateIdle       SyncState = "idle"
	StatePaging     SyncState = "paging"
	StateFiltering  SyncState = "filtering"
	StateBatching   SyncState = "batching"
	StateCommitting SyncState = "committing"
	StateDone       SyncState = "done"
	StateAborted    SyncState = "aborted"
)

// SyncOptions 同步运行参数
type SyncOptions struct {
	Query          string `json:"query" validate:"required"`
	Order          string `json:"order" validate:"required,oneof=latest longest shortest top-rated most-popular top-weekly top-monthly"`
	PerPage        int    `json:"per_page" validate:"gt=0,lte=1000"`
	MaxPages       int    `json:"max_pages" validate:"gt=0"`
	MaxVideos      int    `json:"max_videos" validate:"gt=0"`
	CategoryFilter string `json:"category_filter"`
	BatchSize      int    `json:"batch_size" validate:"gt=0"`
}

// DefaultSyncOptions 默认同步参数
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		Query:     "all",
		Order:     "latest",
		PerPage:   1000,
		MaxPages:  10,
		MaxVideos: 10000,
		BatchSize: 100,
	}
}

// SyncStats 同步运行统计
type SyncStats struct {
	RunID          string        `json:"run_id"`
	TotalProcessed int           `json:"total_processed"`
	NewVideos      int           `json:"new_videos"`
	UpdatedVideos  int           `json:"updated_videos"`
	Errors         int           `json:"errors"`
	Rejected       int           `json:"rejected"`
	Filtered       int           `json:"filtered"`
	Pages          int           `json:"pages"`
	State          SyncState     `json:"state"`
	Duration       time.Duration `json:"duration"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// 远端目录，由 collector.Collector 实现
type catalog interface {
	FetchPage(ctx context.Context, page int, query string, perPage int, order string) (*collector.PageResult, error)
	FetchByID(ctx context.Context, externalID string) (collector.RawRecord, error)
	ResetCache()
}

// VideoServiceConfig 视频服务配置
type VideoServiceConfig struct {
	Defaults    SyncOptions
	PageDelay   time.Duration
	Taxonomy    []string
	SiteName    string
	SiteBaseURL string
}

// VideoService 视频同步服务
type VideoService struct {
	db         *gorm.DB
	catalog    catalog
	categories *CategoryService
	cfg        VideoServiceConfig
	validate   *validator.Validate
	log        *logrus.Entry
}

// NewVideoService 创建视频服务
func NewVideoService(db *gorm.DB, catalog catalog, categories *CategoryService, cfg VideoServiceConfig, log *logrus.Logger) *VideoService {
	if len(cfg.Taxonomy) == 0 {
		cfg.Taxonomy = utils.DefaultTaxonomy
	}
	return &VideoService{
		db:         db,
		catalog:    catalog,
		categories: categories,
		cfg:        cfg,
		validate:   validator.New(),
		log:        log.WithField("component", "sync"),
	}
}

// Defaults 返回配置中的默认同步参数
func (vs *VideoService) Defaults() SyncOptions {
	return vs.cfg.Defaults
}

// BulkSync 分页拉取远端目录并分批写入数据库
// 只有参数错误会返回 error，部分失败体现在统计中
func (vs *VideoService) BulkSync(ctx context.Context, opts SyncOptions) (*SyncStats, error) {
	return vs.run(ctx, models.SyncModeBulk, opts)
}

// SyncByCategory 按分类同步热门视频
func (vs *VideoService) SyncByCategory(ctx context.Context, category string, maxVideos int) (*SyncStats, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("%w: 分类不能为空", ErrConfigurationInvalid)
	}
	if maxVideos <= 0 {
		maxVideos = defaultCategorySyncMax
	}

	opts := vs.cfg.Defaults
	opts.Query = category
	opts.CategoryFilter = category
	opts.Order = "most-popular"
	opts.MaxVideos = maxVideos
	return vs.run(ctx, models.SyncModeCategory, opts)
}

// SyncVideo 按远端ID同步单个视频
func (vs *VideoService) SyncVideo(ctx context.Context, externalID string) (*SyncStats, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: 视频ID不能为空", ErrConfigurationInvalid)
	}

	stats := vs.newStats()
	entry := vs.log.WithFields(logrus.Fields{"run_id": stats.RunID, "external_id": externalID})
	syncLog := vs.startLog(entry, stats, models.SyncModeVideo, SyncOptions{Query: externalID})
	vs.catalog.ResetCache()

	raw, err := vs.catalog.FetchByID(ctx, externalID)
	if err != nil {
		entry.WithError(err).Warn("获取远端视频失败")
		vs.finishLog(entry, syncLog, vs.finish(stats, StateAborted))
		return stats, err
	}

	record, err := utils.Normalize(raw, vs.cfg.Taxonomy)
	if err != nil {
		stats.Rejected++
		vs.finishLog(entry, syncLog, vs.finish(stats, StateAborted))
		return stats, err
	}

	stats.TotalProcessed++
	vs.commitBatch(ctx, entry, []*utils.CanonicalVideo{record}, stats)
	vs.finishLog(entry, syncLog, vs.finish(stats, StateDone))
	return stats, nil
}

func (vs *VideoService) run(ctx context.Context, mode string, opts SyncOptions) (*SyncStats, error) {
	if err := vs.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationInvalid, err)
	}

	stats := vs.newStats()
	entry := vs.log.WithFields(logrus.Fields{
		"run_id": stats.RunID,
		"mode":   mode,
		"query":  opts.Query,
		"order":  opts.Order,
	})
	syncLog := vs.startLog(entry, stats, mode, opts)

	// 新的一次运行，缓存重新开始
	vs.catalog.ResetCache()

	filter := strings.ToLower(strings.TrimSpace(opts.CategoryFilter))
	batch := make([]*utils.CanonicalVideo, 0, opts.BatchSize)
	state := vs.transition(entry, StateIdle, StatePaging)

	for page := 1; page <= opts.MaxPages && stats.TotalProcessed < opts.MaxVideos; page++ {
		if ctx.Err() != nil {
			state = vs.transition(entry, state, StateAborted)
			break
		}

		result, err := vs.catalog.FetchPage(ctx, page, opts.Query, opts.PerPage, opts.Order)
		if err != nil {
			entry.WithError(err).WithField("page", page).Error("获取分页失败，停止同步")
			state = vs.transition(entry, state, StateAborted)
			break
		}
		if len(result.Records) == 0 {
			entry.WithField("page", page).Info("分页为空，同步结束")
			break
		}
		stats.Pages++
		entry.WithFields(logrus.Fields{
			"page":        page,
			"records":     len(result.Records),
			"total":       result.Total,
			"total_pages": result.Pages,
		}).Info("获取分页成功")

		state = vs.transition(entry, state, StateFiltering)
		for _, raw := range result.Records {
			if stats.TotalProcessed >= opts.MaxVideos {
				break
			}

			record, err := utils.Normalize(raw, vs.cfg.Taxonomy)
			if err != nil {
				stats.Rejected++
				entry.WithError(err).Debug("跳过无效记录")
				continue
			}
			if filter != "" && !strings.Contains(strings.ToLower(record.KeywordText), filter) {
				stats.Filtered++
				continue
			}

			batch = append(batch, record)
			stats.TotalProcessed++

			if len(batch) >= opts.BatchSize {
				state = vs.transition(entry, state, StateCommitting)
				vs.commitBatch(ctx, entry, batch, stats)
				batch = batch[:0]
			}
		}
		state = vs.transition(entry, state, StateBatching)

		if page < opts.MaxPages && stats.TotalProcessed < opts.MaxVideos {
			if err := sleepContext(ctx, vs.cfg.PageDelay); err != nil {
				state = vs.transition(entry, state, StateAborted)
				break
			}
			state = vs.transition(entry, state, StatePaging)
		}
	}

	// 剩余记录在取消后仍然提交
	if len(batch) > 0 {
		vs.transition(entry, state, StateCommitting)
		vs.commitBatch(ctx, entry, batch, stats)
	}

	final := StateDone
	if state == StateAborted {
		final = StateAborted
	}
	vs.transition(entry, state, final)
	vs.finish(stats, final)
	vs.finishLog(entry, syncLog, stats)

	entry.WithFields(logrus.Fields{
		"processed": stats.TotalProcessed,
		"new":       stats.NewVideos,
		"updated":   stats.UpdatedVideos,
		"errors":    stats.Errors,
		"rejected":  stats.Rejected,
		"pages":     stats.Pages,
		"duration":  stats.Duration.String(),
	}).Info("同步完成")

	return stats, nil
}

type batchResult struct {
	created int
	updated int
	errors  int
}

// commitBatch 一个批次一个事务，单条记录使用保存点隔离
// 事务不跟随 ctx 取消，取消只在批次之间生效
func (vs *VideoService) commitBatch(ctx context.Context, entry *logrus.Entry, batch []*utils.CanonicalVideo, stats *SyncStats) {
	var result batchResult
	err := vs.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		result = batchResult{}
		for _, record := range batch {
			created, err := vs.saveRecord(tx, record)
			if err != nil {
				result.errors++
				entry.WithError(fmt.Errorf("%w: %v", ErrRecordWriteFailed, err)).
					WithField("external_id", record.ExternalID).
					Warn("记录写入失败")
				continue
			}
			if created {
				result.created++
			} else {
				result.updated++
			}
		}
		return nil
	})
	if err != nil {
		stats.Errors += len(batch)
		entry.WithError(fmt.Errorf("%w: %v", ErrBatchCommitFailed, err)).
			WithField("batch_size", len(batch)).
			Error("批次回滚")
		return
	}

	stats.NewVideos += result.created
	stats.UpdatedVideos += result.updated
	stats.Errors += result.errors
}

// saveRecord 按 external_id 插入或更新单条视频，返回是否为新增
func (vs *VideoService) saveRecord(tx *gorm.DB, record *utils.CanonicalVideo) (bool, error) {
	created := false
	err := tx.Transaction(func(rtx *gorm.DB) error {
		categoryID, err := vs.categories.ResolveCategory(rtx, record.Category)
		if err != nil {
			return err
		}

		var existing models.Video
		found := rtx.Where("external_id = ?", record.ExternalID).Limit(1).Find(&existing)
		if found.Error != nil {
			return fmt.Errorf("查询视频失败: %w", found.Error)
		}

		video := vs.buildVideo(record, categoryID)
		var previousCategory *uint
		if found.RowsAffected > 0 {
			video.ID = existing.ID
			video.CreatedAt = existing.CreatedAt
			if existing.Views > video.Views {
				video.Views = existing.Views
			}
			previousCategory = existing.CategoryID
			if err := rtx.Save(video).Error; err != nil {
				return fmt.Errorf("更新视频失败: %w", err)
			}
		} else {
			created = true
			if err := rtx.Create(video).Error; err != nil {
				return fmt.Errorf("创建视频失败: %w", err)
			}
		}

		if err := vs.categories.SyncTags(rtx, video.ID, record.Keywords); err != nil {
			return err
		}

		if categoryID != 0 {
			if err := vs.categories.RecomputeCategoryCount(rtx, categoryID); err != nil {
				return err
			}
		}
		if previousCategory != nil && *previousCategory != categoryID {
			if err := vs.categories.RecomputeCategoryCount(rtx, *previousCategory); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// 构建数据库行，SEO字段每次写入都重新生成
// 重新出现在远端的视频会被显式恢复为未下架
func (vs *VideoService) buildVideo(record *utils.CanonicalVideo, categoryID uint) *models.Video {
	video := &models.Video{
		ExternalID:     record.ExternalID,
		Title:          record.Title,
		Slug:           record.Slug,
		Description:    record.Description,
		SEOTitle:       utils.SEOTitle(record.Title, record.Category),
		SEODescription: utils.SEODescription(record.Description, record.Title, record.Category, vs.cfg.SiteName),
		CanonicalURL:   fmt.Sprintf("%s/video/%s-%s", strings.TrimRight(vs.cfg.SiteBaseURL, "/"), record.Slug, record.ExternalID),
		Duration:       record.Duration,
		Views:          record.Views,
		Rating:         record.Rating,
		ThumbURL:       record.ThumbURL,
		EmbedURL:       record.EmbedURL,
		VideoURL:       record.VideoURL,
		HLSURL:         record.HLSURL,
		AddedDate:      record.AddedDate,
		IsActive:       true,
		IsRemoved:      false,
	}
	if categoryID != 0 {
		id := categoryID
		video.CategoryID = &id
	}
	return video
}

func (vs *VideoService) newStats() *SyncStats {
	return &SyncStats{
		RunID:     uuid.NewString(),
		State:     StateIdle,
		StartedAt: time.Now(),
	}
}

func (vs *VideoService) finish(stats *SyncStats, state SyncState) *SyncStats {
	stats.State = state
	stats.FinishedAt = time.Now()
	stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)
	return stats
}

func (vs *VideoService) transition(entry *logrus.Entry, from, to SyncState) SyncState {
	if from != to {
		entry.WithFields(logrus.Fields{"from": from, "to": to}).Debug("状态切换")
	}
	return to
}

// 记录同步日志，写入失败只告警
func (vs *VideoService) startLog(entry *logrus.Entry, stats *SyncStats, mode string, opts SyncOptions) *models.SyncLog {
	syncLog := &models.SyncLog{
		RunID:     stats.RunID,
		Mode:      mode,
		Query:     opts.Query,
		Order:     opts.Order,
		StartTime: stats.StartedAt,
		Status:    models.SyncStatusRunning,
	}
	if err := vs.db.Create(syncLog).Error; err != nil {
		entry.WithError(err).Warn("写入同步日志失败")
		return nil
	}
	return syncLog
}

func (vs *VideoService) finishLog(entry *logrus.Entry, syncLog *models.SyncLog, stats *SyncStats) {
	if syncLog == nil {
		return
	}
	syncLog.Pages = stats.Pages
	syncLog.Processed = stats.TotalProcessed
	syncLog.NewCount = stats.NewVideos
	syncLog.Updated = stats.UpdatedVideos
	syncLog.Errors = stats.Errors
	syncLog.Rejected = stats.Rejected
	syncLog.Duration = stats.Duration.String()
	syncLog.EndTime = stats.FinishedAt
	syncLog.Status = runStatus(stats.State, stats.Errors, stats.NewVideos+stats.UpdatedVideos)

	if err := vs.db.Save(syncLog).Error; err != nil {
		entry.WithError(err).Warn("更新同步日志失败")
	}
}

func runStatus(state SyncState, errCount, written int) string {
	switch {
	case state == StateAborted:
		return models.SyncStatusAborted
	case errCount > 0 && written == 0:
		return models.SyncStatusFailed
	case errCount > 0:
		return models.SyncStatusPartial
	default:
		return models.SyncStatusSuccess
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
