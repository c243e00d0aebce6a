// Package orchestrator owns the per-video pipeline: it schedules transcoding
// and transcription as background tasks and reconciles their results into
// the video record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/internal/realtime"
	"github.com/clipreview/backend/internal/transcoder"
	"github.com/clipreview/backend/internal/transcription"
	"github.com/clipreview/backend/internal/videos"
	"github.com/clipreview/backend/internal/worker"
	"github.com/clipreview/backend/pkg/storage"
)

// Transcoder runs the two transcoding stages. *transcoder.Engine satisfies it.
type Transcoder interface {
	Standardize(ctx context.Context, inputPath string, videoID uuid.UUID) (string, error)
	Package(ctx context.Context, canonicalPath string, videoID uuid.UUID) (*transcoder.PackageResult, error)
	WorkDir(videoID uuid.UUID) string
}

// Config holds pipeline policy.
type Config struct {
	// PublicBaseURL prefixes stream URLs; empty yields root-relative URLs.
	PublicBaseURL string
	// MaxUploadBytes rejects larger uploads; zero disables the check.
	MaxUploadBytes int64
	// AutoTranscribe requests a transcript once the stream is ready.
	AutoTranscribe bool
	// MediaURLExpiry is the lifetime of the media URL handed to the vendor.
	MediaURLExpiry time.Duration
	// TranscriptionTimeout bounds a single vendor submission, including polling.
	TranscriptionTimeout time.Duration
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store         videos.Store
	Storage       storage.Backend
	Transcoder    Transcoder
	Transcription transcription.Client
	Scheduler     worker.Scheduler
	Notifier      realtime.Notifier
	Logger        *zap.Logger
}

var _ videos.Pipeline = (*Orchestrator)(nil)

// Orchestrator sequences background work per video. Stages of one video run
// in order; different videos run concurrently and share nothing but the
// store.
type Orchestrator struct {
	store    videos.Store
	storage  storage.Backend
	engine   Transcoder
	client   transcription.Client
	sched    worker.Scheduler
	notifier realtime.Notifier
	logger   *zap.Logger
	cfg      Config
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Storage == nil || deps.Scheduler == nil {
		return nil, errors.New("orchestrator: store, storage and scheduler are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = realtime.NopNotifier{}
	}
	if cfg.MediaURLExpiry <= 0 {
		cfg.MediaURLExpiry = time.Hour
	}
	if cfg.TranscriptionTimeout <= 0 {
		cfg.TranscriptionTimeout = 30 * time.Minute
	}
	return &Orchestrator{
		store:    deps.Store,
		storage:  deps.Storage,
		engine:   deps.Transcoder,
		client:   deps.Transcription,
		sched:    deps.Scheduler,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		cfg:      cfg,
	}, nil
}

// StreamURL is the playback URL recorded for a packaged video.
func (o *Orchestrator) StreamURL(id uuid.UUID) string {
	return videos.StreamURL(o.cfg.PublicBaseURL, id)
}

// Ingest validates and stores an upload, creates its record and schedules
// processing. Validation failures create nothing.
func (o *Orchestrator) Ingest(ctx context.Context, up videos.Upload) (*models.Video, error) {
	if up.Filename == "" {
		return nil, fmt.Errorf("%w: filename required", models.ErrValidation)
	}
	if !storage.ValidateVideoFileType(up.ContentType, up.Filename) {
		return nil, fmt.Errorf("%w: unsupported file type", models.ErrValidation)
	}
	if up.Size <= 0 {
		return nil, fmt.Errorf("%w: empty file", models.ErrValidation)
	}
	if o.cfg.MaxUploadBytes > 0 && up.Size > o.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", models.ErrValidation, o.cfg.MaxUploadBytes)
	}

	id := uuid.New()
	key := storage.RawKey(id.String(), up.Filename)
	if _, err := o.storage.Put(ctx, key, up.Body, uploadContentType(up)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	v := &models.Video{
		ID:               id,
		StorageKey:       key,
		OriginalFilename: up.Filename,
		FileSize:         up.Size,
		MimeType:         up.ContentType,
	}
	if err := o.store.Create(ctx, v); err != nil {
		if derr := o.storage.Delete(context.WithoutCancel(ctx), key); derr != nil {
			o.logger.Error("remove orphaned upload failed", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("create video: %w", err)
	}
	o.logger.Info("video uploaded",
		zap.String("video_id", id.String()),
		zap.String("filename", up.Filename),
		zap.Int64("size", up.Size),
	)
	o.EnqueueProcessing(ctx, id, key)
	return v, nil
}

func uploadContentType(up videos.Upload) string {
	if up.ContentType != "" && up.ContentType != "application/octet-stream" {
		return up.ContentType
	}
	return storage.ContentTypeForFilename(up.Filename)
}

// EnqueueProcessing schedules standardization and packaging. It does not
// wait; progress is observed on the record.
func (o *Orchestrator) EnqueueProcessing(ctx context.Context, id uuid.UUID, rawKey string) {
	err := o.sched.Schedule(ctx, worker.Task{Kind: worker.KindProcess, VideoID: id, StorageKey: rawKey})
	if err != nil {
		o.logger.Error("schedule processing failed", zap.String("video_id", id.String()), zap.Error(err))
	}
}

// HandleTask runs a background task. Every scheduler delivers tasks here.
func (o *Orchestrator) HandleTask(ctx context.Context, t worker.Task) error {
	var err error
	switch t.Kind {
	case worker.KindProcess:
		err = o.process(ctx, t.VideoID, t.StorageKey)
	case worker.KindTranscribe:
		err = o.transcribe(ctx, t.VideoID)
	default:
		return fmt.Errorf("unknown task kind: %q", t.Kind)
	}
	if errors.Is(err, models.ErrNotFound) {
		// The video was deleted while the task ran.
		o.logger.Info("task target gone", zap.String("kind", string(t.Kind)), zap.String("video_id", t.VideoID.String()))
		return nil
	}
	return err
}

// Delete removes a video's media and then its record. When media removal
// fails the record is kept so the delete can be retried.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := o.store.GetByID(ctx, id); err != nil {
		return err
	}
	var errs []error
	for _, prefix := range []string{storage.UploadPrefix(id.String()), storage.VideoPrefix(id.String()), storage.HLSPrefix(id.String())} {
		if err := o.storage.DeletePrefix(ctx, prefix); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if err := o.store.Delete(ctx, id); err != nil {
		return err
	}
	o.logger.Info("video deleted", zap.String("video_id", id.String()))
	o.publish(ctx, realtime.Event{Type: realtime.EventDeleted, VideoID: id})
	return nil
}

// notify publishes the current record as an event. Delivery is best effort.
func (o *Orchestrator) notify(ctx context.Context, typ string, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	v, err := o.store.GetByID(ctx, id)
	if err != nil {
		return
	}
	o.publish(ctx, realtime.Event{Type: typ, VideoID: id, Video: v})
}

func (o *Orchestrator) publish(ctx context.Context, e realtime.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := o.notifier.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Debug("publish event failed", zap.String("video_id", e.VideoID.String()), zap.String("type", e.Type), zap.Error(err))
	}
}
