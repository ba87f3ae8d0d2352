package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger 根据配置创建日志实例
func NewLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("未知日志级别，使用 info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}
