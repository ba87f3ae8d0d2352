package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"vidsocial/collector"
	"vidsocial/config"
	"vidsocial/server"
	"vidsocial/services"
)

func main() {
	mode := flag.String("mode", "server", "运行模式: server, sync, category, video, removed")
	configPath := flag.String("config", "", "YAML配置文件路径（可选）")
	category := flag.String("category", "", "分类同步的分类名")
	videoID := flag.String("id", "", "单个视频同步的远端ID")
	maxVideos := flag.Int("max-videos", 0, "最大同步视频数，0 使用默认值")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *mode, *category, *videoID, *maxVideos); err != nil {
		log.WithError(err).Error("运行失败")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, mode, category, videoID string, maxVideos int) error {
	db, err := config.OpenDatabase(cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	catalog := collector.NewCollector(collector.Options{
		BaseURL:   cfg.Catalog.BaseURL,
		UserAgent: cfg.Catalog.UserAgent,
		Timeout:   cfg.Catalog.Timeout,
	}, log)

	categories := services.NewCategoryService(db, log)
	videos := services.NewVideoService(db, catalog, categories, services.VideoServiceConfig{
		Defaults: services.SyncOptions{
			Query:     cfg.Sync.Query,
			Order:     cfg.Sync.Order,
			PerPage:   cfg.Sync.PerPage,
			MaxPages:  cfg.Sync.MaxPages,
			MaxVideos: cfg.Sync.MaxVideos,
			BatchSize: cfg.Sync.BatchSize,
		},
		PageDelay:   cfg.Sync.PageDelay,
		Taxonomy:    cfg.Sync.Taxonomy,
		SiteName:    cfg.Site.Name,
		SiteBaseURL: cfg.Site.BaseURL,
	}, log)
	removal := services.NewRemovalService(db, catalog, categories, cfg.Sync.RemovedPageDelay, log)

	switch mode {
	case "server":
		srv := server.NewServer(ctx, server.Deps{
			Config:     cfg,
			DB:         db,
			Log:        log,
			Videos:     videos,
			Removal:    removal,
			Categories: categories,
		})
		return srv.Start(ctx)

	case "sync":
		opts := videos.Defaults()
		if maxVideos > 0 {
			opts.MaxVideos = maxVideos
		}
		_, err := videos.BulkSync(ctx, opts)
		return err

	case "category":
		_, err := videos.SyncByCategory(ctx, category, maxVideos)
		return err

	case "video":
		_, err := videos.SyncVideo(ctx, videoID)
		return err

	case "removed":
		removal.SyncRemoved(ctx)
		return nil

	default:
		return fmt.Errorf("未知运行模式: %s", mode)
	}
}
