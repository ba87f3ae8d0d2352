package utils

import (
	"regexp"
	"strings"
)

// MaxSlugLength slug 最大长度
const MaxSlugLength = 200

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashes       = regexp.MustCompile(`-+`)
)

// Slugify 生成 slug：小写，非 [a-z0-9-] 字符替换为 -，合并连续 -，去掉首尾 -，截断到 200 字符
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = slugInvalidChars.ReplaceAllString(slug, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}
