package models

import "time"

// Tag 标签模型
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name       string `gorm:"size:100;not null" json:"name"`
	Slug       string `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	VideoCount int    `gorm:"default:0;index" json:"video_count"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
}

// TableName 指定表名
func (Tag) TableName() string {
	return "tags"
}

// VideoTag 视频与标签的关联，每次同步整体替换
type VideoTag struct {
	VideoID uint `gorm:"primaryKey" json:"video_id"`
	TagID   uint `gorm:"primaryKey;index" json:"tag_id"`
}

// TableName 指定表名
func (VideoTag) TableName() string {
	return "video_tags"
}
