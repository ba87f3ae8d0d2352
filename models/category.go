package models

import (
	"time"
)

// Category 视频分类模型
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 分类名称
	Name string `gorm:"size:100;not null" json:"name"`

	// 规范化后的标识，存储层保证唯一
	Slug string `gorm:"size:100;uniqueIndex;not null" json:"slug"`

	Description string `gorm:"size:500" json:"description"`

	// 派生统计：有效且未下架的视频数，按需重算
	VideoCount int `gorm:"default:0" json:"video_count"`

	// 状态
	IsActive bool `gorm:"default:true" json:"is_active"`
}

// TableName 指定表名
func (Category) TableName() string {
	return "categories"
}
