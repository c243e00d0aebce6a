// Package main runs the clip review HTTP server with WebSocket status updates and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clipreview/backend/config"
	"github.com/clipreview/backend/internal/app"
	"github.com/clipreview/backend/internal/middleware"
	"github.com/clipreview/backend/internal/orchestrator"
	"github.com/clipreview/backend/internal/realtime"
	"github.com/clipreview/backend/internal/videos"
	"github.com/clipreview/backend/internal/worker"
	"github.com/clipreview/backend/pkg/queue"
	"github.com/clipreview/backend/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger("info").Fatal("load config", zap.Error(err))
	}
	logger := app.NewLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open services", zap.Error(err))
	}
	defer svc.Close()

	// Events reach local WebSocket clients directly, or through Redis when
	// a worker process publishes them too.
	var hub *realtime.Hub
	if svc.PubSub != nil {
		hub = realtime.NewHub(logger, svc.PubSub, svc.PubSub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	var (
		sched worker.Scheduler
		pool  *worker.Pool
	)
	switch cfg.Jobs.Backend {
	case config.JobsRedis:
		sched = worker.NewQueueScheduler(queue.NewQueue(svc.Redis.Client, logger), logger)
		logger.Info("background tasks go to the redis queue")
	default:
		pool = worker.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueDepth, logger)
		sched = pool
	}

	orch, err := orchestrator.New(orchestrator.Config{
		PublicBaseURL:        cfg.Upload.PublicBaseURL,
		MaxUploadBytes:       cfg.Upload.MaxBytes,
		AutoTranscribe:       cfg.Transcription.AutoTranscribe,
		TranscriptionTimeout: cfg.Transcription.Timeout,
	}, orchestrator.Deps{
		Store:         svc.Store,
		Storage:       svc.Storage,
		Transcoder:    svc.Engine,
		Transcription: svc.Transcription,
		Scheduler:     sched,
		Notifier:      hub,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("orchestrator", zap.Error(err))
	}
	if pool != nil {
		if err := pool.Start(orch.HandleTask); err != nil {
			logger.Fatal("worker pool", zap.Error(err))
		}
	}

	videoHandler := videos.NewHandler(svc.Store, orch, svc.Storage, videos.HandlerConfig{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		URLExpiry:      time.Duration(cfg.AWS.PresignExpireMinutes) * time.Minute,
	}, logger)
	webhookHandler := videos.NewWebhookHandler(orch, svc.Signer, logger)
	if svc.Signer == nil {
		logger.Warn("TRANSCRIPTION_WEBHOOK_SECRET not set; transcription callbacks are not authenticated")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.CORSOptions{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AllowedMethods: cfg.Server.CORSAllowedMethods,
		AllowedHeaders: cfg.Server.CORSAllowedHeaders,
		ExposedHeaders: cfg.Server.CORSExposedHeaders,
		MaxAgeSeconds:  cfg.Server.CORSMaxAge,
	}))
	router.Use(middleware.Logger(logger, middleware.DefaultSkipPaths...))
	router.Use(middleware.Metrics(middleware.DefaultSkipPaths...))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		if err := svc.Health(c.Request.Context()); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			response.ServiceUnavailable(c, err.Error())
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Videos
	router.POST("/videos", videoHandler.Upload)
	router.GET("/videos", videoHandler.List)
	router.GET("/videos/:id", videoHandler.Get)
	router.DELETE("/videos/:id", videoHandler.Delete)
	router.POST("/videos/:id/transcription", videoHandler.RequestTranscription)
	router.GET("/videos/:id/stream/:file", videoHandler.Stream)
	router.GET("/videos/:id/events", realtime.ServeWs(hub, svc.Store.GetByID, logger))

	// Local media (S3 URLs are pre-signed and fetched from the bucket)
	if svc.Local != nil {
		router.GET("/media/*key", videos.ServeMedia(svc.Local))
	}

	// Webhooks (token in query; checked in handler when a secret is configured)
	router.POST("/webhooks/transcription", webhookHandler.Transcription)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("jobs", cfg.Jobs.Backend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if pool != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Jobs.ShutdownTimeout)
		defer drainCancel()
		if err := pool.Shutdown(drainCtx); err != nil {
			logger.Warn("background tasks cancelled at shutdown", zap.Error(err))
		}
	}
	logger.Info("server stopped")
}
