package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/handler"
	"github.com/seaburr/cookie-cutter-maker/middleware"
	"github.com/seaburr/cookie-cutter-maker/service"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg := config.New()

	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		panic(err)
	}
	defer utils.Sync()

	for _, dir := range []string{cfg.Upload.UploadDir, cfg.Output.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			utils.Logger.Fatal("failed to create directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	// The cache is optional: a dead redis only disables deduplication.
	var cache *service.RedisService
	redisSvc := service.NewRedisService(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisSvc.Ping(ctx); err != nil {
		utils.Logger.Warn("redis unavailable, trace caching disabled", zap.Error(err))
	} else {
		cache = redisSvc
	}
	cancel()

	rembg := service.NewU2NetSession(cfg.Rembg)
	if !rembg.Available() {
		utils.Logger.Warn("background-removal model not found, complex images will use segmentation fallback",
			zap.String("model_path", cfg.Rembg.ModelPath))
	}

	traceSvc := service.NewTraceService(cfg.Trace, cfg.Extract, cfg.Segment, rembg)
	meshSvc := service.NewMeshService(cfg.Mesh)
	h := handler.NewHandler(cfg, traceSvc, meshSvc, rembg, cache)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.Logger(), middleware.Recovery(), middleware.Cors())
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version})
	})
	r.Static("/files", cfg.Output.Dir)

	api := r.Group("/api/v1")
	{
		api.POST("/trace", h.Trace)
		api.GET("/trace/:key", h.CachedTrace)
		api.POST("/mesh", h.Mesh)
		api.POST("/pipeline", h.Pipeline)
		api.GET("/features", h.Features)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	utils.Logger.Info("starting server",
		zap.String("addr", cfg.Server.Port),
		zap.String("version", version))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Logger.Fatal("server exited", zap.Error(err))
	}
}
