/*
Package config 配置管理包

项目结构说明：
================

项目目录结构：
/
├── main.go              # 程序入口，组装依赖并按模式运行
├── config/              # 配置相关
│   ├── config.go        # 应用配置（YAML + 环境变量）
│   ├── logger.go        # 日志初始化
│   └── database.go      # 数据库连接和初始化
├── server/              # HTTP服务器
├── routes/              # API路由表
├── collector/           # 远端目录客户端
├── handles/             # HTTP处理器
├── services/            # 同步流水线、下架对账、分类/标签解析
├── models/              # 数据库模型
├── middleware/          # 中间件（认证、CORS、限流、请求日志）
└── utils/               # 记录规范化、SEO、统一响应

数据流向：
1. main.go -> 加载配置 -> 初始化日志和数据库 -> 组装服务
2. services/VideoService -> collector/Collector 拉取分页 -> utils.Normalize
   -> services/CategoryService 解析分类和标签 -> 分批事务写入
3. services/RemovalService -> 拉取下架列表 -> 标记 is_removed
4. server -> routes -> handles 读取数据库

运行方式：
1. 服务器模式: ./vidsocial --mode=server
2. 批量同步:   ./vidsocial --mode=sync
3. 分类同步:   ./vidsocial --mode=category --category=amateur
4. 单条同步:   ./vidsocial --mode=video --id=abc123
5. 下架对账:   ./vidsocial --mode=removed
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Sync      SyncConfig      `yaml:"sync"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Site      SiteConfig      `yaml:"site"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port       string `yaml:"port" env:"PORT" env-default:"8080"`
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN" env-default:"vidsocial_admin"`
	GinMode    string `yaml:"gin_mode" env:"GIN_MODE" env-default:"release"`
}

// DatabaseConfig 数据库配置，driver 为 sqlite 或 postgres
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	Path     string `yaml:"path" env:"DB_PATH" env-default:"vidsocial.db"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DB_USER" env-default:"vidsocial"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"vidsocial"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`
	LogLevel string `yaml:"log_level" env:"DB_LOG_LEVEL" env-default:"warn"`
}

// CatalogConfig 远端目录接口配置
type CatalogConfig struct {
	BaseURL   string        `yaml:"base_url" env:"CATALOG_BASE_URL" env-default:"https://www.eporner.com/api/v2"`
	Timeout   time.Duration `yaml:"timeout" env:"CATALOG_TIMEOUT" env-default:"30s"`
	UserAgent string        `yaml:"user_agent" env:"CATALOG_USER_AGENT" env-default:"VidSocial/2.0"`
}

// SyncConfig 同步默认参数
type SyncConfig struct {
	Query            string        `yaml:"query" env:"SYNC_QUERY" env-default:"all"`
	Order            string        `yaml:"order" env:"SYNC_ORDER" env-default:"latest"`
	PerPage          int           `yaml:"per_page" env:"SYNC_PER_PAGE" env-default:"1000"`
	MaxPages         int           `yaml:"max_pages" env:"SYNC_MAX_PAGES" env-default:"10"`
	MaxVideos        int           `yaml:"max_videos" env:"SYNC_MAX_VIDEOS" env-default:"10000"`
	BatchSize        int           `yaml:"batch_size" env:"SYNC_BATCH_SIZE" env-default:"100"`
	PageDelay        time.Duration `yaml:"page_delay" env:"SYNC_PAGE_DELAY" env-default:"250ms"`
	RemovedPageDelay time.Duration `yaml:"removed_page_delay" env:"SYNC_REMOVED_PAGE_DELAY" env-default:"500ms"`
	Taxonomy         []string      `yaml:"taxonomy" env:"SYNC_TAXONOMY" env-separator:","`
}

// RateLimitConfig 入站限流配置
type RateLimitConfig struct {
	APIMax        int           `yaml:"api_max" env:"RATE_LIMIT_API_MAX" env-default:"100"`
	EmbedMax      int           `yaml:"embed_max" env:"RATE_LIMIT_EMBED_MAX" env-default:"500"`
	Window        time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1h"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL" env-default:"10m"`
}

// SiteConfig 站点信息，用于SEO和规范链接
type SiteConfig struct {
	Name    string `yaml:"name" env:"SITE_NAME" env-default:"VidSocial"`
	BaseURL string `yaml:"base_url" env:"SITE_BASE_URL" env-default:"http://localhost:8080"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// LoadConfig 加载配置
// 先加载配置文件所在目录和工作目录下的 .env，再读取 YAML 文件（可选），环境变量优先
func LoadConfig(path string) (*Config, error) {
	if err := loadEnvFiles(path); err != nil {
		return nil, fmt.Errorf("加载.env文件失败: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}
	return cfg, nil
}

func loadEnvFiles(path string) error {
	dirs := []string{}
	if path != "" {
		dirs = append(dirs, filepath.Dir(path))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	var files []string
	seen := map[string]struct{}{}
	for _, dir := range dirs {
		fp := filepath.Join(filepath.Clean(dir), ".env")
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		if _, err := os.Stat(fp); err == nil {
			files = append(files, fp)
		}
	}
	if len(files) == 0 {
		return nil
	}
	// 不覆盖已存在的环境变量
	return godotenv.Load(files...)
}
