package models

import "time"

// 同步模式
const (
	SyncModeBulk     = "bulk"
	SyncModeCategory = "category"
	SyncModeVideo    = "video"
	SyncModeRemoved  = "removed"
)

// 同步状态
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
	SyncStatusAborted = "aborted"
)

// SyncLog 同步日志模型
type SyncLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RunID     string    `gorm:"size:36;index" json:"run_id"`
	Mode      string    `gorm:"size:20;index" json:"mode"`
	Query     string    `gorm:"size:200" json:"query"`
	Order     string    `gorm:"column:sort_order;size:50" json:"order"`
	Pages     int       `json:"pages"`
	Processed int       `json:"processed"`
	NewCount  int       `json:"new_count"`
	Updated   int       `json:"updated"`
	Errors    int       `json:"errors"`
	Rejected  int       `json:"rejected"`
	Removed   int       `json:"removed"`
	Duration  string    `gorm:"size:100" json:"duration"`
	StartTime time.Time `gorm:"index" json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `gorm:"size:20;index" json:"status"` // running, success, partial, failed, aborted
}

// TableName 指定表名
func (SyncLog) TableName() string {
	return "sync_logs"
}
