package utils

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	seoTitleMax       = 60
	seoDescriptionMax = 160
	ellipsis          = "..."
)

var seoPunctuation = regexp.MustCompile("[!@#$%^&*()_+=\\[\\]{}|;':\",./<>?~`]+")

// TitleCase 单词首字母大写
func TitleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}

// SEOTitle 生成SEO标题，最长60个字符
func SEOTitle(title, category string) string {
	clean := CollapseWhitespace(seoPunctuation.ReplaceAllString(title, " "))
	seo := TitleCase(clean)
	if category != "" {
		seo += " - " + TitleCase(category) + " Video"
	}
	return truncate(seo, seoTitleMax)
}

// SEODescription 生成SEO描述，最长160个字符，描述为空时使用标题
func SEODescription(description, title, category, site string) string {
	text := description
	if strings.TrimSpace(text) == "" {
		text = title
	}
	text = CollapseWhitespace(StripTags(text))

	seo := "Watch " + text
	if category != "" {
		seo += " in " + category + " category"
	}
	seo += " and thousands more adult videos on " + site + "."
	return truncate(seo, seoDescriptionMax)
}

// 按字符截断，超出时保留 max-3 个字符并追加 ...
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-len(ellipsis)]) + ellipsis
}
