package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidsocial/config"
	"vidsocial/handles"
	"vidsocial/middleware"
	"vidsocial/routes"
	"vidsocial/services"
)

// Deps 服务器依赖，由 main 组装
type Deps struct {
	Config     *config.Config
	DB         *gorm.DB
	Log        *logrus.Logger
	Videos     *services.VideoService
	Removal    *services.RemovalService
	Categories *services.CategoryService
}

// Server HTTP服务器
type Server struct {
	cfg     *config.Config
	router  *gin.Engine
	limiter *middleware.RateLimiter
	sync    *handles.SyncHandler
	log     *logrus.Entry
}

// NewServer 创建服务器实例，ctx 控制后台同步任务的生命周期
func NewServer(ctx context.Context, deps Deps) *Server {
	// 设置 Gin 模式 (release/debug/test)
	gin.SetMode(deps.Config.Server.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.CORS())

	limiter := middleware.NewRateLimiter()
	syncHandler := handles.NewSyncHandler(ctx, deps.DB, deps.Videos, deps.Removal, deps.Log)

	routes.SetupRoutes(router, routes.Handlers{
		Videos:     handles.NewVideoHandler(deps.DB, deps.Log),
		Categories: handles.NewCategoryHandler(deps.Categories),
		Sync:       syncHandler,
	}, routes.Limits{
		Limiter:  limiter,
		APIMax:   deps.Config.RateLimit.APIMax,
		EmbedMax: deps.Config.RateLimit.EmbedMax,
		Window:   deps.Config.RateLimit.Window,
	}, deps.Config.Server.AdminToken)

	return &Server{
		cfg:     deps.Config,
		router:  router,
		limiter: limiter,
		sync:    syncHandler,
		log:     deps.Log.WithField("component", "server"),
	}
}

// Handler 返回路由，供测试使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务器，ctx 取消后优雅退出并等待后台任务结束
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.cfg.Server.Port).Info("服务器启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务器启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	s.sync.Wait()
	s.log.Info("服务器已关闭")
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	interval := s.cfg.RateLimit.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.log.WithField("keys", n).Debug("清理限流记录")
			}
		}
	}
}
