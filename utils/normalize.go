package utils

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/html"
)

// ErrRecordRejected 远端记录缺少标识，无法入库
var ErrRecordRejected = errors.New("记录缺少远端ID")

// OtherCategory 未命中分类表时使用的分类
const OtherCategory = "other"

const (
	maxKeywords        = 20
	minKeywordLength   = 3
	maxKeywordLength   = 30
	descriptionMaxWord = 20
)

// DefaultTaxonomy 默认分类表，按顺序匹配，先命中者优先
var DefaultTaxonomy = []string{
	"amateur", "anal", "asian", "babe", "bbw", "big-ass", "big-tits",
	"blonde", "blowjob", "brunette", "creampie", "cumshot", "deepthroat",
	"fetish", "hardcore", "interracial", "latina", "lesbian", "mature",
	"milf", "oral", "pornstar", "pov", "redhead", "teen", "threesome",
}

var keywordSeparators = regexp.MustCompile(`[\s,]+`)

// 日期格式，依次尝试
var addedLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// CanonicalVideo 规范化后的视频记录
type CanonicalVideo struct {
	ExternalID  string
	Title       string
	Slug        string
	Description string
	KeywordText string // 解码后的关键词原文
	Keywords    []string
	Category    string
	Duration    int
	Views       int64
	Rating      float64
	ThumbURL    string
	EmbedURL    string
	VideoURL    string
	HLSURL      string
	AddedDate   *time.Time
}

type thumbInfo struct {
	Src    string `mapstructure:"src"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

type sourceInfo struct {
	MP4 string `mapstructure:"mp4"`
	HLS string `mapstructure:"hls"`
}

// rawVideo 远端记录，字段类型不固定（字符串或数字），按弱类型解码
type rawVideo struct {
	ID           string      `mapstructure:"id"`
	Title        string      `mapstructure:"title"`
	Keywords     string      `mapstructure:"keywords"`
	Description  string      `mapstructure:"description"`
	Views        int64       `mapstructure:"views"`
	Rate         float64     `mapstructure:"rate"`
	URL          string      `mapstructure:"url"`
	Added        string      `mapstructure:"added"`
	LengthSec    int         `mapstructure:"length_sec"`
	Embed        string      `mapstructure:"embed"`
	Thumb        string      `mapstructure:"thumb"`
	DefaultThumb thumbInfo   `mapstructure:"default_thumb"`
	Thumbs       []thumbInfo `mapstructure:"thumbs"`
	Src          sourceInfo  `mapstructure:"src"`
}

// Normalize 将一条远端记录转换为规范记录
// 只有缺少ID会拒绝整条记录，其余字段解析失败时使用默认值
func Normalize(raw map[string]interface{}, taxonomy []string) (*CanonicalVideo, error) {
	var rv rawVideo
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rv,
	})
	if err != nil {
		return nil, err
	}
	// 单个字段类型错误不影响其他字段，该字段保持零值
	_ = decoder.Decode(raw)

	id := strings.TrimSpace(rv.ID)
	if id == "" {
		return nil, ErrRecordRejected
	}

	if len(taxonomy) == 0 {
		taxonomy = DefaultTaxonomy
	}

	title := CollapseWhitespace(StripTags(rv.Title))
	if title == "" {
		title = "Video " + id
	}
	keywordText := CollapseWhitespace(html.UnescapeString(rv.Keywords))

	return &CanonicalVideo{
		ExternalID:  id,
		Title:       title,
		Slug:        Slugify(title),
		Description: buildDescription(rv.Description, keywordText),
		KeywordText: keywordText,
		Keywords:    ExtractKeywords(keywordText),
		Category:    InferCategory(keywordText, taxonomy),
		Duration:    rv.LengthSec,
		Views:       rv.Views,
		Rating:      rv.Rate,
		ThumbURL:    selectThumbnail(rv),
		EmbedURL:    rv.Embed,
		VideoURL:    firstNonEmpty(rv.Src.MP4, rv.URL),
		HLSURL:      rv.Src.HLS,
		AddedDate:   ParseAdded(rv.Added),
	}, nil
}

// ExtractKeywords 按空白和逗号切分，保留 3~30 个字符的词，去重后最多 20 个
func ExtractKeywords(text string) []string {
	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{})
	for _, word := range keywordSeparators.Split(text, -1) {
		n := utf8.RuneCountInString(word)
		if n < minKeywordLength || n > maxKeywordLength {
			continue
		}
		key := strings.ToLower(word)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// InferCategory 关键词中第一个命中的分类，未命中返回 other
func InferCategory(keywordText string, taxonomy []string) string {
	lower := strings.ToLower(keywordText)
	for _, term := range taxonomy {
		if term != "" && strings.Contains(lower, term) {
			return term
		}
	}
	return OtherCategory
}

// ParseAdded 解析远端日期，失败返回 nil
func ParseAdded(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range addedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// 缩略图优先级：thumb -> default_thumb.src -> thumbs[0].src
func selectThumbnail(rv rawVideo) string {
	if rv.Thumb != "" {
		return rv.Thumb
	}
	if rv.DefaultThumb.Src != "" {
		return rv.DefaultThumb.Src
	}
	if len(rv.Thumbs) > 0 {
		return rv.Thumbs[0].Src
	}
	return ""
}

func buildDescription(native, keywordText string) string {
	text := CollapseWhitespace(StripTags(native))
	if text == "" {
		text = CollapseWhitespace(StripTags(keywordText))
	}
	words := strings.Fields(text)
	if len(words) > descriptionMaxWord {
		words = words[:descriptionMaxWord]
	}
	return strings.Join(words, " ")
}

// StripTags 去掉HTML标签并解码实体
func StripTags(s string) string {
	if !strings.Contains(s, "<") {
		return html.UnescapeString(s)
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// CollapseWhitespace 合并连续空白并去掉首尾空白
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
