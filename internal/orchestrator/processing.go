package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/metrics"
	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/internal/realtime"
	"github.com/clipreview/backend/pkg/storage"
)

// Pipeline stage names used in logs and metrics.
const (
	stageDownload    = "download"
	stageStandardize = "standardize"
	stageUpload      = "upload"
	stagePackage     = "package"
)

// process standardizes and packages one video. A failure leaves the record
// at the stage that failed and without a stream URL.
func (o *Orchestrator) process(ctx context.Context, id uuid.UUID, rawKey string) error {
	if o.engine == nil {
		return errors.New("no transcoder configured")
	}
	log := o.logger.With(zap.String("video_id", id.String()))

	v, err := o.store.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		log.Info("video deleted before processing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if v.StreamReady() {
		log.Info("video already processed")
		return nil
	}
	if rawKey != "" && rawKey != v.StorageKey {
		log.Debug("using record storage key", zap.String("task_key", rawKey), zap.String("record_key", v.StorageKey))
	}

	defer func() {
		if err := os.RemoveAll(o.engine.WorkDir(id)); err != nil {
			log.Warn("remove work dir failed", zap.Error(err))
		}
	}()

	canonicalKey := storage.StandardizedKey(id.String())
	var canonicalPath string
	if v.StorageKey == canonicalKey {
		// Standardized by an earlier run; only packaging is left.
		canonicalPath, err = o.download(ctx, id, canonicalKey)
		if err != nil {
			return o.stageFailed(log, stageDownload, err)
		}
	} else {
		if err := o.advance(ctx, id, models.ProcessingStandardizing); err != nil {
			return err
		}
		canonicalPath, err = o.standardize(ctx, id, v.StorageKey)
		if err != nil {
			return err
		}
	}

	if err := o.advance(ctx, id, models.ProcessingPackaging); err != nil {
		return err
	}
	start := time.Now()
	res, err := o.engine.Package(ctx, canonicalPath, id)
	metrics.ObserveStage(stagePackage, start, err)
	if err != nil {
		return o.stageFailed(log, stagePackage, err)
	}

	if err := o.store.SetStreamURL(ctx, id, o.StreamURL(id)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Deleted while packaging; do not leave the output behind.
			if derr := o.storage.DeletePrefix(context.WithoutCancel(ctx), storage.HLSPrefix(id.String())); derr != nil {
				log.Error("remove hls output of deleted video failed", zap.Error(derr))
			}
			return nil
		}
		if !errors.Is(err, models.ErrInvalidState) {
			return fmt.Errorf("set stream url: %w", err)
		}
	}
	if err := o.advance(ctx, id, models.ProcessingReady); err != nil {
		return err
	}
	log.Info("video ready", zap.Int("segments", res.Segments), zap.Float64("duration_seconds", res.Duration))
	o.notify(ctx, realtime.EventStreamReady, id)

	if o.cfg.AutoTranscribe && o.client != nil {
		if err := o.RequestTranscription(ctx, id); err != nil && !errors.Is(err, models.ErrInvalidState) {
			log.Error("auto transcription request failed", zap.Error(err))
		}
	}
	return nil
}

// standardize downloads the raw upload, encodes it and replaces the raw
// object with the canonical one.
func (o *Orchestrator) standardize(ctx context.Context, id uuid.UUID, rawKey string) (string, error) {
	log := o.logger.With(zap.String("video_id", id.String()))

	start := time.Now()
	inputPath, err := o.download(ctx, id, rawKey)
	metrics.ObserveStage(stageDownload, start, err)
	if err != nil {
		return "", o.stageFailed(log, stageDownload, err)
	}

	start = time.Now()
	canonicalPath, err := o.engine.Standardize(ctx, inputPath, id)
	metrics.ObserveStage(stageStandardize, start, err)
	if err != nil {
		return "", o.stageFailed(log, stageStandardize, err)
	}
	_ = os.Remove(inputPath)

	start = time.Now()
	canonicalKey := storage.StandardizedKey(id.String())
	err = o.upload(ctx, canonicalPath, canonicalKey)
	metrics.ObserveStage(stageUpload, start, err)
	if err != nil {
		return "", o.stageFailed(log, stageUpload, err)
	}
	if err := o.store.UpdateStorageKey(ctx, id, canonicalKey); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Deleted while encoding; the upload above outlived the record.
			if derr := o.storage.DeletePrefix(context.WithoutCancel(ctx), storage.VideoPrefix(id.String())); derr != nil {
				log.Error("remove standardized file of deleted video failed", zap.Error(derr))
			}
		}
		return "", fmt.Errorf("update storage key: %w", err)
	}
	if rawKey != canonicalKey {
		if err := o.storage.Delete(ctx, rawKey); err != nil {
			log.Warn("remove raw upload failed", zap.String("key", rawKey), zap.Error(err))
		}
	}
	return canonicalPath, nil
}

// advance moves the processing state forward and announces it.
func (o *Orchestrator) advance(ctx context.Context, id uuid.UUID, to models.ProcessingState) error {
	if err := o.store.SetProcessingState(ctx, id, to); err != nil {
		return fmt.Errorf("set processing state %s: %w", to, err)
	}
	o.notify(ctx, realtime.EventProcessingState, id)
	return nil
}

func (o *Orchestrator) stageFailed(log *zap.Logger, stage string, err error) error {
	log.Error("processing stage failed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%s: %w", stage, err)
}

// download copies an object into the video's work dir.
func (o *Orchestrator) download(ctx context.Context, id uuid.UUID, key string) (string, error) {
	dir := o.engine.WorkDir(id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	rc, err := o.storage.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dst := filepath.Join(dir, "source"+path.Ext(key))
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (o *Orchestrator) upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = o.storage.Put(ctx, key, f, storage.ContentTypeForFilename(key))
	return err
}
