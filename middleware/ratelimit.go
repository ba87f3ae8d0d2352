package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter 滑动窗口限流器，按 key 记录请求时间
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	mu     sync.Mutex
	hits   []time.Time
	window time.Duration
	dead   bool // 已被 Sweep 移除
}

// NewRateLimiter 创建限流器
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

// Allow 窗口内请求数小于 max 时放行并记录本次请求
func (l *RateLimiter) Allow(key string, max int, window time.Duration) bool {
	if max <= 0 {
		return false
	}

	w := l.acquire(key)
	defer w.mu.Unlock()

	now := l.now()
	w.window = window
	w.evict(now)
	if len(w.hits) >= max {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}

// acquire 返回已加锁的窗口
func (l *RateLimiter) acquire(key string) *slidingWindow {
	for {
		l.mu.Lock()
		w, ok := l.windows[key]
		if !ok {
			w = &slidingWindow{}
			l.windows[key] = w
		}
		l.mu.Unlock()

		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

// Remaining 当前窗口内剩余可用次数
func (l *RateLimiter) Remaining(key string, max int, window time.Duration) int {
	l.mu.Lock()
	w, ok := l.windows[key]
	l.mu.Unlock()
	if !ok {
		return max
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.window = window
	w.evict(l.now())
	if n := max - len(w.hits); n > 0 {
		return n
	}
	return 0
}

// Sweep 清理窗口内已无请求的 key
func (l *RateLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		w.evict(now)
		empty := len(w.hits) == 0
		if empty {
			w.dead = true
		}
		w.mu.Unlock()
		if empty {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len 当前记录的 key 数量
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// evict 丢弃窗口之外的时间戳，调用方持有 w.mu
func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// RateLimit 限流中间件，key 为前缀加客户端IP
func RateLimit(limiter *RateLimiter, prefix string, max int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(prefix+c.ClientIP(), max, window) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
