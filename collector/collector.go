package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	removedPerPage   = 1000
	defaultThumbSize = "big"
)

// RawRecord 远端原始记录，字段类型不固定
type RawRecord = map[string]interface{}

// PageResult 一页搜索结果
type PageResult struct {
	Records []RawRecord `json:"records"`
	Total   int         `json:"total"`
	Pages   int         `json:"pages"`
	Page    int         `json:"page"`
}

// 搜索接口响应结构（数字字段可能是string或int）
type searchResponse struct {
	TotalCount  interface{} `json:"total_count"`
	TotalVideos interface{} `json:"total_videos"`
	TotalPages  interface{} `json:"total_pages"`
	Page        interface{} `json:"page"`
	Videos      []RawRecord `json:"videos"`
}

// Options 采集器配置
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Collector 远端目录采集器
type Collector struct {
	client    *http.Client
	baseURL   string
	userAgent string
	log       *logrus.Entry

	// 单次运行内的响应缓存，key 为完整URL
	mu    sync.RWMutex
	cache map[string][]byte
	group singleflight.Group
}

// NewCollector 创建采集器
func NewCollector(opts Options, log *logrus.Logger) *Collector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Collector{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		log:       log.WithField("component", "collector"),
		cache:     make(map[string][]byte),
	}
}

// ResetCache 清空响应缓存，每次运行开始时调用
func (c *Collector) ResetCache() {
	c.mu.Lock()
	c.cache = make(map[string][]byte)
	c.mu.Unlock()
}

// FetchPage 获取一页搜索结果
func (c *Collector) FetchPage(ctx context.Context, page int, query string, perPage int, order string) (*PageResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("order", order)
	params.Set("thumbsize", defaultThumbSize)
	params.Set("format", "json")

	pageURL := c.buildURL("/video/search/", params)
	body, err := c.fetchData(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedResponseError{URL: pageURL, Err: err}
	}

	result := &PageResult{
		Records: resp.Videos,
		Pages:   toInt(resp.TotalPages),
		Page:    toInt(resp.Page),
	}
	if result.Records == nil {
		result.Records = []RawRecord{}
	}

	switch {
	case resp.TotalCount != nil:
		result.Total = toInt(resp.TotalCount)
	case resp.TotalVideos != nil:
		result.Total = toInt(resp.TotalVideos)
	default:
		result.Total = len(result.Records)
	}
	if result.Page == 0 {
		result.Page = page
	}

	return result, nil
}

// FetchByID 获取单个视频，不存在时返回 ErrNotFound
func (c *Collector) FetchByID(ctx context.Context, externalID string) (RawRecord, error) {
	params := url.Values{}
	params.Set("id", externalID)
	params.Set("thumbsize", defaultThumbSize)
	params.Set("format", "json")

	videoURL := c.buildURL("/video/id/", params)
	body, err := c.fetchData(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedResponseError{URL: videoURL, Err: err}
	}

	var record RawRecord
	switch v := payload.(type) {
	case map[string]interface{}:
		record = v
	case []interface{}:
		// 不存在时接口返回空数组
		if len(v) > 0 {
			record, _ = v[0].(map[string]interface{})
		}
	}
	if record == nil || toString(record["id"]) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	return record, nil
}

// FetchRemovedPage 获取一页已下架的视频ID
func (c *Collector) FetchRemovedPage(ctx context.Context, page int) ([]string, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(removedPerPage))
	params.Set("format", "json")

	removedURL := c.buildURL("/video/removed/", params)
	body, err := c.fetchData(ctx, removedURL)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedResponseError{URL: removedURL, Err: err}
	}

	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items, _ = v["removed_videos"].([]interface{})
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		var id string
		if m, ok := item.(map[string]interface{}); ok {
			id = toString(m["id"])
		} else {
			id = toString(item)
		}
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Collector) buildURL(path string, params url.Values) string {
	return c.baseURL + path + "?" + params.Encode()
}

// 获取数据，相同URL在一次运行内只请求一次
func (c *Collector) fetchData(ctx context.Context, rawURL string) ([]byte, error) {
	c.mu.RLock()
	body, ok := c.cache[rawURL]
	c.mu.RUnlock()
	if ok {
		c.log.WithField("url", rawURL).Debug("命中响应缓存")
		return body, nil
	}

	v, err, _ := c.group.Do(rawURL, func() (interface{}, error) {
		body, err := c.request(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[rawURL] = body
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Collector) request(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	entry := c.log.WithField("url", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &UnavailableError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		entry.WithError(err).Warn("请求失败")
		return nil, &UnavailableError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		entry.WithField("status", resp.StatusCode).Warn("远端返回非200状态")
		return nil, &UnavailableError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{URL: rawURL, Err: err}
	}
	if !json.Valid(body) {
		return nil, &MalformedResponseError{URL: rawURL, Err: fmt.Errorf("响应不是合法JSON")}
	}

	entry.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
		"bytes":      len(body),
	}).Debug("请求完成")
	return body, nil
}

// 辅助函数：类型转换
func toInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}
