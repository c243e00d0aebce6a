package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/metrics"
	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/internal/realtime"
	"github.com/clipreview/backend/internal/transcription"
	"github.com/clipreview/backend/internal/worker"
)

var (
	requestableFrom = []models.TranscriptionStatus{models.TranscriptionNotStarted, models.TranscriptionFailed}
	runningFrom     = []models.TranscriptionStatus{models.TranscriptionPending, models.TranscriptionInProgress}
)

// RequestTranscription moves the video to pending and schedules the vendor
// submission. Only one of several concurrent requests wins; the others get
// models.ErrInvalidState.
func (o *Orchestrator) RequestTranscription(ctx context.Context, id uuid.UUID) error {
	if o.client == nil {
		return fmt.Errorf("%w: transcription is not configured", models.ErrInvalidState)
	}
	err := o.store.TransitionTranscription(ctx, id, requestableFrom, models.TranscriptionPending)
	if errors.Is(err, models.ErrInvalidState) {
		if v, gerr := o.store.GetByID(ctx, id); gerr == nil {
			return fmt.Errorf("%w: transcription is %s", models.ErrInvalidState, v.TranscriptionStatus)
		}
		return err
	}
	if err != nil {
		return err
	}
	o.notify(ctx, realtime.EventTranscriptionStatus, id)

	if err := o.sched.Schedule(ctx, worker.Task{Kind: worker.KindTranscribe, VideoID: id}); err != nil {
		o.logger.Error("schedule transcription failed", zap.String("video_id", id.String()), zap.Error(err))
		o.markFailed(ctx, id, []models.TranscriptionStatus{models.TranscriptionPending})
		return fmt.Errorf("schedule transcription: %w", err)
	}
	return nil
}

// transcribe submits the video to the vendor. In poll mode the transcript
// is written here; in webhook mode HandleCallback finishes the job.
func (o *Orchestrator) transcribe(ctx context.Context, id uuid.UUID) error {
	if o.client == nil {
		return errors.New("no transcription client configured")
	}
	log := o.logger.With(zap.String("video_id", id.String()))

	err := o.store.TransitionTranscription(ctx, id, []models.TranscriptionStatus{models.TranscriptionPending}, models.TranscriptionInProgress)
	if errors.Is(err, models.ErrInvalidState) {
		log.Info("transcription no longer pending")
		return nil
	}
	if err != nil {
		return err
	}
	o.notify(ctx, realtime.EventTranscriptionStatus, id)

	v, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	mediaURL, err := o.storage.URLFor(ctx, v.StorageKey, o.cfg.MediaURLExpiry)
	if err != nil {
		o.markFailed(ctx, id, runningFrom)
		return fmt.Errorf("resolve media url: %w", err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, o.cfg.TranscriptionTimeout)
	defer cancel()
	out, err := o.client.Submit(submitCtx, mediaURL, id.String())
	// Results are recorded even if the task context ended meanwhile.
	storeCtx := context.WithoutCancel(ctx)
	if out.JobID != "" {
		if jerr := o.store.SetTranscriptJobID(storeCtx, id, out.JobID); jerr != nil {
			log.Warn("store transcript job id failed", zap.String("job_id", out.JobID), zap.Error(jerr))
		}
	}
	if err != nil {
		log.Error("transcription failed", zap.Error(err))
		o.markFailed(storeCtx, id, runningFrom)
		return err
	}
	if out.Async {
		log.Info("transcription submitted", zap.String("job_id", out.JobID))
		return nil
	}
	return o.complete(storeCtx, id, out.Text)
}

// HandleCallback applies a vendor completion notification. Callbacks for
// finished videos are rejected with models.ErrInvalidState so a late or
// duplicate delivery never changes a completed transcript.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb transcription.Callback) error {
	if cb.Status == "" {
		return fmt.Errorf("%w: status required", models.ErrValidation)
	}
	v, err := o.resolveCallback(ctx, cb)
	if err != nil {
		return err
	}
	log := o.logger.With(zap.String("video_id", v.ID.String()), zap.String("status", cb.Status))
	if v.TranscriptionStatus == models.TranscriptionCompleted {
		log.Info("ignoring callback for completed transcription")
		return fmt.Errorf("%w: transcription already completed", models.ErrInvalidState)
	}
	if cb.JobID != "" && v.TranscriptJobID != "" && cb.JobID != v.TranscriptJobID {
		// A redelivery for an earlier attempt must not touch the current one.
		log.Info("ignoring callback for superseded job", zap.String("job_id", cb.JobID), zap.String("current_job_id", v.TranscriptJobID))
		return fmt.Errorf("%w: job %s is not the current transcription", models.ErrInvalidState, cb.JobID)
	}

	if cb.Status != transcription.StatusCompleted {
		log.Warn("vendor reported transcription failure", zap.String("error", cb.Error))
		if err := o.store.TransitionTranscription(ctx, v.ID, runningFrom, models.TranscriptionFailed); err != nil {
			return err
		}
		metrics.TranscriptionsTotal.WithLabelValues(metrics.StatusError).Inc()
		o.notify(ctx, realtime.EventTranscriptionStatus, v.ID)
		return nil
	}

	text := cb.Text
	if text == "" {
		jobID := cb.JobID
		if jobID == "" {
			jobID = v.TranscriptJobID
		}
		if jobID == "" {
			return fmt.Errorf("%w: transcript text or job id required", models.ErrValidation)
		}
		if o.client == nil {
			return errors.New("no transcription client configured")
		}
		text, err = o.client.Fetch(ctx, jobID)
		if err != nil {
			log.Error("fetch transcript failed", zap.String("job_id", jobID), zap.Error(err))
			o.markFailed(ctx, v.ID, runningFrom)
			return nil
		}
	}
	return o.complete(ctx, v.ID, text)
}

func (o *Orchestrator) resolveCallback(ctx context.Context, cb transcription.Callback) (*models.Video, error) {
	if cb.CorrelationID != "" {
		id, err := uuid.Parse(cb.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid correlation id", models.ErrValidation)
		}
		return o.store.GetByID(ctx, id)
	}
	if cb.JobID != "" {
		return o.store.GetByTranscriptJobID(ctx, cb.JobID)
	}
	return nil, fmt.Errorf("%w: correlation id or job id required", models.ErrValidation)
}

func (o *Orchestrator) complete(ctx context.Context, id uuid.UUID, text string) error {
	if err := o.store.CompleteTranscription(ctx, id, text); err != nil {
		return fmt.Errorf("complete transcription: %w", err)
	}
	metrics.TranscriptionsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	o.logger.Info("transcription completed", zap.String("video_id", id.String()), zap.Int("chars", len(text)))
	o.notify(ctx, realtime.EventTranscriptionStatus, id)
	return nil
}

// markFailed moves a running transcription to failed. The transcript stays
// unset so a new request can be made.
func (o *Orchestrator) markFailed(ctx context.Context, id uuid.UUID, from []models.TranscriptionStatus) {
	ctx = context.WithoutCancel(ctx)
	if err := o.store.TransitionTranscription(ctx, id, from, models.TranscriptionFailed); err != nil {
		o.logger.Warn("mark transcription failed", zap.String("video_id", id.String()), zap.Error(err))
		return
	}
	metrics.TranscriptionsTotal.WithLabelValues(metrics.StatusError).Inc()
	o.notify(ctx, realtime.EventTranscriptionStatus, id)
}
