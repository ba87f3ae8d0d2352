package services

import (
	"context"
	"fmt"
	"time"

	"vidsocial/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 单条 UPDATE 的最大ID数
const removedChunkSize = 500

type removedCatalog interface {
	FetchRemovedPage(ctx context.Context, page int) ([]string, error)
	ResetCache()
}

// RemovalStats 下架对账统计
type RemovalStats struct {
	RunID      string        `json:"run_id"`
	Pages      int           `json:"pages"`
	Reported   int           `json:"reported"`
	Marked     int           `json:"marked"`
	Errors     int           `json:"errors"`
	State      SyncState     `json:"state"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// RemovalService 下架对账服务
type RemovalService struct {
	db         *gorm.DB
	catalog    removedCatalog
	categories *CategoryService
	pageDelay  time.Duration
	log        *logrus.Entry
}

// NewRemovalService 创建下架对账服务
func NewRemovalService(db *gorm.DB, catalog removedCatalog, categories *CategoryService, pageDelay time.Duration, log *logrus.Logger) *RemovalService {
	return &RemovalService{
		db:         db,
		catalog:    catalog,
		categories: categories,
		pageDelay:  pageDelay,
		log:        log.WithField("component", "removal"),
	}
}

// SyncRemoved 逐页拉取远端下架列表并标记本地视频，直到空页
// 失败不会中断调用方，只体现在统计中
func (s *RemovalService) SyncRemoved(ctx context.Context) *RemovalStats {
	stats := &RemovalStats{
		RunID:     uuid.NewString(),
		State:     StatePaging,
		StartedAt: time.Now(),
	}
	entry := s.log.WithField("run_id", stats.RunID)

	syncLog := &models.SyncLog{
		RunID:     stats.RunID,
		Mode:      models.SyncModeRemoved,
		StartTime: stats.StartedAt,
		Status:    models.SyncStatusRunning,
	}
	if err := s.db.Create(syncLog).Error; err != nil {
		entry.WithError(err).Warn("写入同步日志失败")
		syncLog = nil
	}

	s.catalog.ResetCache()
	stats.State = StateDone

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			stats.State = StateAborted
			break
		}

		ids, err := s.catalog.FetchRemovedPage(ctx, page)
		if err != nil {
			stats.Errors++
			stats.State = StateAborted
			entry.WithError(err).WithField("page", page).Error("获取下架列表失败")
			break
		}
		if len(ids) == 0 {
			break
		}
		stats.Pages++
		stats.Reported += len(ids)

		marked, err := s.markRemoved(ctx, ids)
		if err != nil {
			stats.Errors++
			entry.WithError(err).WithField("page", page).Error("标记下架失败")
		}
		stats.Marked += marked

		entry.WithFields(logrus.Fields{
			"page":     page,
			"reported": len(ids),
			"marked":   marked,
		}).Info("下架列表处理完成")

		if err := sleepContext(ctx, s.pageDelay); err != nil {
			stats.State = StateAborted
			break
		}
	}

	if stats.Marked > 0 {
		if err := s.categories.RecomputeAllCounts(s.db.WithContext(context.WithoutCancel(ctx))); err != nil {
			stats.Errors++
			entry.WithError(err).Error("重算视频数失败")
		}
	}

	stats.FinishedAt = time.Now()
	stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)

	if syncLog != nil {
		syncLog.Pages = stats.Pages
		syncLog.Removed = stats.Marked
		syncLog.Errors = stats.Errors
		syncLog.Duration = stats.Duration.String()
		syncLog.EndTime = stats.FinishedAt
		syncLog.Status = runStatus(stats.State, stats.Errors, stats.Marked)
		if err := s.db.Save(syncLog).Error; err != nil {
			entry.WithError(err).Warn("更新同步日志失败")
		}
	}

	entry.WithFields(logrus.Fields{
		"pages":    stats.Pages,
		"marked":   stats.Marked,
		"errors":   stats.Errors,
		"duration": stats.Duration.String(),
	}).Info("下架对账完成")

	return stats
}

// markRemoved 标记下架，已下架的行保持 updated_at 不变
func (s *RemovalService) markRemoved(ctx context.Context, ids []string) (int, error) {
	total := 0
	now := time.Now()
	for start := 0; start < len(ids); start += removedChunkSize {
		end := start + removedChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		result := s.db.WithContext(ctx).Model(&models.Video{}).
			Where("external_id IN ?", ids[start:end]).
			UpdateColumns(map[string]interface{}{
				"is_removed": true,
				"updated_at": gorm.Expr("CASE WHEN is_removed = ? THEN updated_at ELSE ? END", true, now),
			})
		if result.Error != nil {
			return total, fmt.Errorf("更新下架状态失败: %w", result.Error)
		}
		total += int(result.RowsAffected)
	}
	return total, nil
}
