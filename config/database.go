package config

import (
	"fmt"
	"time"

	"vidsocial/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDatabase 初始化数据库
func OpenDatabase(cfg DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	// 配置日志，gorm 日志写入 logrus
	newLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.Path)
	case "postgres":
		dialector = postgres.Open(fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
		))
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.Driver == "sqlite" || cfg.Driver == "" {
		// SQLite 只允许单个写连接
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("获取数据库连接失败: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.SetupJoinTable(&models.Video{}, "Tags", &models.VideoTag{}); err != nil {
		return nil, fmt.Errorf("设置关联表失败: %w", err)
	}

	// 自动迁移表结构
	err = db.AutoMigrate(
		&models.Category{},
		&models.Tag{},
		&models.Video{},
		&models.VideoTag{},
		&models.SyncLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	log.WithField("driver", dialector.Name()).Info("数据库初始化成功")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
