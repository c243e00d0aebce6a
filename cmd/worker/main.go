// Package main runs the background worker that consumes pipeline tasks from Redis.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/clipreview/backend/config"
	"github.com/clipreview/backend/internal/app"
	"github.com/clipreview/backend/internal/orchestrator"
	"github.com/clipreview/backend/internal/realtime"
	"github.com/clipreview/backend/internal/worker"
	"github.com/clipreview/backend/pkg/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger("info").Fatal("load config", zap.Error(err))
	}
	logger := app.NewLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	// The worker only makes sense with the shared queue.
	cfg.Jobs.Backend = config.JobsRedis

	ctx := context.Background()
	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open services", zap.Error(err))
	}
	defer svc.Close()

	jobQueue := queue.NewQueue(svc.Redis.Client, logger)
	var notifier realtime.Notifier = realtime.NopNotifier{}
	if svc.PubSub != nil {
		notifier = svc.PubSub
	}

	// Follow-up tasks (auto transcription) go back through the queue.
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
		Scheduler:     worker.NewQueueScheduler(jobQueue, logger),
		Notifier:      notifier,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("orchestrator", zap.Error(err))
	}

	pool := worker.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueDepth, logger)
	if err := pool.Start(orch.HandleTask); err != nil {
		logger.Fatal("worker pool", zap.Error(err))
	}
	consumer := worker.NewConsumer(jobQueue, pool, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		consumer.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.Int("workers", cfg.Jobs.Workers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Jobs.ShutdownTimeout)
	defer drainCancel()
	if err := pool.Shutdown(drainCtx); err != nil {
		logger.Warn("tasks cancelled at shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
}
