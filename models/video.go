package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

// Video 视频模型（以远端 external_id 唯一标识）
type Video struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 远端标识，入库后不可变
	ExternalID string `gorm:"size:64;uniqueIndex;not null" json:"external_id" validate:"required,max=64"`

	// 基本信息
	Title       string `gorm:"size:500;not null" json:"title" validate:"required,max=500"`
	Slug        string `gorm:"size:200;index" json:"slug" validate:"max=200"` // 不保证唯一
	Description string `gorm:"type:text" json:"description"`

	// SEO
	SEOTitle       string `gorm:"column:seo_title;size:255" json:"seo_title"`
	SEODescription string `gorm:"column:seo_description;size:500" json:"seo_description"`
	CanonicalURL   string `gorm:"size:1000" json:"canonical_url"`

	// 播放信息
	Duration int     `gorm:"default:0" json:"duration" validate:"gte=0"` // 秒
	Views    int64   `gorm:"default:0;index" json:"views" validate:"gte=0"`
	Rating   float64 `gorm:"default:0" json:"rating"`
	ThumbURL string  `gorm:"size:1000" json:"thumb_url"`
	EmbedURL string  `gorm:"size:1000" json:"embed_url"`
	VideoURL string  `gorm:"size:1000" json:"video_url"`
	HLSURL   string  `gorm:"column:hls_url;size:1000" json:"hls_url"`

	AddedDate *time.Time `gorm:"index" json:"added_date"`

	// 分类
	CategoryID *uint     `gorm:"index" json:"category_id"`
	Category   *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Tags       []Tag     `gorm:"many2many:video_tags" json:"tags,omitempty"`

	// 状态
	IsActive  bool `gorm:"default:true;index" json:"is_active"`
	IsRemoved bool `gorm:"default:false;index" json:"is_removed"`
}

// TableName 指定表名
func (Video) TableName() string {
	return "videos"
}

// BeforeSave 入库前校验字段
func (v *Video) BeforeSave(tx *gorm.DB) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("视频 %s 字段校验失败: %w", v.ExternalID, err)
	}
	return nil
}
