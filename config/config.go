package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	AWS           AWSConfig
	Transcode     TranscodeConfig
	Transcription TranscriptionConfig
	Jobs          JobsConfig
	Upload        UploadConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	CORSAllowedMethods string
	CORSAllowedHeaders string
	CORSExposedHeaders string
	CORSMaxAge         int
	LogLevel           string
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig selects the video store. Postgres settings follow the
// DATABASE_URL / DB_* convention; SQLitePath is used by the sqlite driver.
type DatabaseConfig struct {
	Driver     string
	URL        string // if set, used as-is (e.g. postgres://localhost:5432/clipreview?sslmode=disable)
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool // also publish status events through Redis
}

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// StorageConfig selects the object store.
type StorageConfig struct {
	Backend   string
	LocalRoot string
	// MediaBaseURL is where GET /media/* is reachable; defaults to
	// PublicBaseURL + "/media".
	MediaBaseURL string
	WorkDir      string
}

// AWSConfig holds credentials and the bucket for the s3 backend.
type AWSConfig struct {
	Region               string
	Endpoint             string // S3-compatible endpoint (R2, MinIO); empty for AWS
	AccessKeyID          string
	SecretAccessKey      string
	Bucket               string
	UsePathStyle         bool
	PresignExpireMinutes int
}

// TranscodeConfig is the output profile and the ffmpeg binaries.
type TranscodeConfig struct {
	FFmpegPath      string
	FFprobePath     string
	MaxHeight       int
	MaxFPS          int
	SegmentSeconds  int
	VideoBitrate    string
	Preset          string
	AudioBitrate    string
	AudioSampleRate int
	AudioChannels   int
	StageTimeout    time.Duration
}

// TranscriptionConfig holds speech-to-text vendor settings.
type TranscriptionConfig struct {
	Mode           string // poll or webhook
	APIKey         string
	BaseURL        string
	WebhookBaseURL string // public base URL the vendor can reach
	WebhookSecret  string
	PollInterval   time.Duration
	Timeout        time.Duration
	HTTPTimeout    time.Duration
	AutoTranscribe bool
}

// Job backends.
const (
	JobsInline = "inline"
	JobsRedis  = "redis"
)

// JobsConfig selects where background tasks run. inline runs them on an
// in-process pool; redis hands them to cmd/worker.
type JobsConfig struct {
	Backend         string
	Workers         int
	QueueDepth      int
	ShutdownTimeout time.Duration
}

// UploadConfig bounds uploads and sets public URLs.
type UploadConfig struct {
	MaxBytes      int64
	PublicBaseURL string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// WebhookURL is the callback endpoint given to the vendor.
func (c TranscriptionConfig) WebhookURL() string {
	if c.WebhookBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.WebhookBaseURL, "/") + "/webhooks/transcription"
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	publicBaseURL := strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 300),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			CORSAllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET, POST, DELETE, OPTIONS"),
			CORSAllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type, Range"),
			CORSExposedHeaders: getEnv("CORS_EXPOSED_HEADERS", "Content-Length, Content-Range"),
			CORSMaxAge:         getEnvInt("CORS_MAX_AGE_SEC", 86400),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", DriverSQLite),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "clipreview"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "data/clipreview.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_EVENTS", false),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", StorageLocal),
			LocalRoot:    getEnv("STORAGE_ROOT", "data/media"),
			MediaBaseURL: getEnv("MEDIA_BASE_URL", publicBaseURL+"/media"),
			WorkDir:      getEnv("TRANSCODE_WORK_DIR", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:               getEnv("AWS_S3_BUCKET", ""),
			UsePathStyle:         getEnvBool("AWS_S3_PATH_STYLE", false),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Transcode: TranscodeConfig{
			FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),
			MaxHeight:       getEnvInt("TRANSCODE_MAX_HEIGHT", 720),
			MaxFPS:          getEnvInt("TRANSCODE_MAX_FPS", 30),
			SegmentSeconds:  getEnvInt("HLS_SEGMENT_SECONDS", 10),
			VideoBitrate:    getEnv("TRANSCODE_VIDEO_BITRATE", "2500k"),
			Preset:          getEnv("TRANSCODE_PRESET", "medium"),
			AudioBitrate:    getEnv("TRANSCODE_AUDIO_BITRATE", "128k"),
			AudioSampleRate: getEnvInt("TRANSCODE_AUDIO_SAMPLE_RATE", 44100),
			AudioChannels:   getEnvInt("TRANSCODE_AUDIO_CHANNELS", 2),
			StageTimeout:    getEnvDuration("TRANSCODE_STAGE_TIMEOUT", 30*time.Minute),
		},
		Transcription: TranscriptionConfig{
			Mode:           getEnv("TRANSCRIPTION_MODE", "poll"),
			APIKey:         getEnv("ASSEMBLYAI_API_KEY", ""),
			BaseURL:        getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
			WebhookBaseURL: getEnv("TRANSCRIPTION_WEBHOOK_BASE_URL", publicBaseURL),
			WebhookSecret:  getEnv("TRANSCRIPTION_WEBHOOK_SECRET", ""),
			PollInterval:   getEnvDuration("TRANSCRIPTION_POLL_INTERVAL", 3*time.Second),
			Timeout:        getEnvDuration("TRANSCRIPTION_TIMEOUT", 30*time.Minute),
			HTTPTimeout:    getEnvDuration("TRANSCRIPTION_HTTP_TIMEOUT", 30*time.Second),
			AutoTranscribe: getEnvBool("AUTO_TRANSCRIBE", false),
		},
		Jobs: JobsConfig{
			Backend:         getEnv("JOBS_BACKEND", JobsInline),
			Workers:         getEnvInt("JOBS_WORKERS", 2),
			QueueDepth:      getEnvInt("JOBS_QUEUE_DEPTH", 64),
			ShutdownTimeout: getEnvDuration("JOBS_SHUTDOWN_TIMEOUT", 60*time.Second),
		},
		Upload: UploadConfig{
			MaxBytes:      getEnvInt64("MAX_UPLOAD_BYTES", 2<<30),
			PublicBaseURL: publicBaseURL,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q", c.Database.Driver))
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalRoot == "" {
			errs = append(errs, errors.New("STORAGE_ROOT is required for local storage"))
		}
	case StorageS3:
		if c.AWS.Bucket == "" {
			errs = append(errs, errors.New("AWS_S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND: unknown backend %q", c.Storage.Backend))
	}
	switch c.Jobs.Backend {
	case JobsInline, JobsRedis:
	default:
		errs = append(errs, fmt.Errorf("JOBS_BACKEND: unknown backend %q", c.Jobs.Backend))
	}
	switch c.Transcription.Mode {
	case "poll":
	case "webhook":
		if c.Transcription.WebhookSecret == "" {
			errs = append(errs, errors.New("TRANSCRIPTION_WEBHOOK_SECRET is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("TRANSCRIPTION_MODE: unknown mode %q", c.Transcription.Mode))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
