// Package app wires configuration into the shared services used by both the
// HTTP server and the background worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clipreview/backend/config"
	"github.com/clipreview/backend/internal/realtime"
	"github.com/clipreview/backend/internal/transcoder"
	"github.com/clipreview/backend/internal/transcription"
	"github.com/clipreview/backend/internal/videos"
	"github.com/clipreview/backend/pkg/database"
	"github.com/clipreview/backend/pkg/redis"
	"github.com/clipreview/backend/pkg/storage"
)

// Services are the long-lived dependencies of a process.
type Services struct {
	Store   videos.Store
	Storage storage.Backend
	// Local is set when Storage is the filesystem backend.
	Local  *storage.Local
	Engine *transcoder.Engine
	// Transcription is nil when no vendor key is configured.
	Transcription transcription.Client
	Signer        *transcription.CallbackSigner
	// Redis is nil unless the job queue or event bridge needs it.
	Redis  *redis.Client
	PubSub *realtime.RedisPubSub

	// DBPing checks the video store's database.
	DBPing func(ctx context.Context) error

	closers []func()
}

// NewLogger builds the production zap logger at the given level.
func NewLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Open connects every configured backend. On error, anything already opened
// is closed.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{}
	if err := s.open(ctx, cfg, logger); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) open(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {

	if err := s.openStore(ctx, cfg.Database, logger); err != nil {
		return err
	}
	if err := s.openStorage(ctx, cfg, logger); err != nil {
		return err
	}
	if err := s.openEngine(cfg.Transcode, cfg.Storage.WorkDir, logger); err != nil {
		return err
	}
	if err := s.openTranscription(cfg.Transcription, logger); err != nil {
		return err
	}
	if cfg.Jobs.Backend == config.JobsRedis || cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return err
		}
		s.Redis = rdb
		s.PubSub = realtime.NewRedisPubSub(rdb.Client, logger)
		s.closers = append(s.closers, func() { _ = rdb.Close() })
	}
	return nil
}

// Close releases resources in reverse opening order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Services) openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) error {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.DSN(), database.PoolOptions{}, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		s.Store = videos.NewRepository(pool)
		s.DBPing = pool.Ping
	case config.DriverSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.Store = videos.NewSQLiteRepository(db)
		s.DBPing = db.PingContext
	case config.DriverMemory:
		logger.Warn("using in-memory video store; records are lost on restart")
		s.Store = videos.NewMemoryRepository()
		s.DBPing = func(context.Context) error { return nil }
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	return nil
}

func (s *Services) openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		local, err := storage.NewLocal(cfg.Storage.LocalRoot, cfg.Storage.MediaBaseURL, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		s.Local = local
		s.Storage = local
	case config.StorageS3:
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			Endpoint:             cfg.AWS.Endpoint,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.Bucket,
			UsePathStyle:         cfg.AWS.UsePathStyle,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		s.Storage = s3
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

// Policy converts transcode settings into the engine's output policy.
func Policy(cfg config.TranscodeConfig) transcoder.Policy {
	p := transcoder.DefaultPolicy()
	p.MaxHeight = cfg.MaxHeight
	p.MaxFPS = cfg.MaxFPS
	p.SegmentSeconds = cfg.SegmentSeconds
	p.VideoBitrate = cfg.VideoBitrate
	p.Preset = cfg.Preset
	p.AudioBitrate = cfg.AudioBitrate
	p.AudioSampleRate = cfg.AudioSampleRate
	p.AudioChannels = cfg.AudioChannels
	p.StageTimeout = cfg.StageTimeout
	return p
}

func (s *Services) openEngine(cfg config.TranscodeConfig, workDir string, logger *zap.Logger) error {
	ff := transcoder.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if err := ff.CheckBinaries(); err != nil {
		logger.Warn("ffmpeg not available; processing tasks will fail", zap.Error(err))
	}
	engine, err := transcoder.NewEngine(ff, s.Storage, Policy(cfg), workDir, logger)
	if err != nil {
		return err
	}
	s.Engine = engine
	return nil
}

func (s *Services) openTranscription(cfg config.TranscriptionConfig, logger *zap.Logger) error {
	if cfg.WebhookSecret != "" {
		s.Signer = transcription.NewCallbackSigner(cfg.WebhookSecret, 0)
	}
	if cfg.APIKey == "" {
		logger.Warn("ASSEMBLYAI_API_KEY not set; transcription requests will be rejected")
		return nil
	}
	client, err := transcription.NewAssemblyAI(transcription.AssemblyAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Mode:         transcription.Mode(cfg.Mode),
		WebhookURL:   cfg.WebhookURL(),
		PollInterval: cfg.PollInterval,
		HTTPTimeout:  cfg.HTTPTimeout,
	}, s.Signer, logger)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}
	s.Transcription = client
	return nil
}

// Health pings the store, the object storage and Redis when present.
func (s *Services) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var errs []error
	if err := s.DBPing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := s.Storage.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
