package videos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipreview/backend/internal/models"
)

const videoColumns = `id, storage_key, original_filename, file_size, mime_type, stream_url, transcript,
	transcription_status, transcript_job_id, processing_state, created_at, updated_at`

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.StorageKey, &v.OriginalFilename, &v.FileSize, &v.MimeType, &v.StreamURL, &v.Transcript,
		&v.TranscriptionStatus, &v.TranscriptJobID, &v.ProcessingState, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Create inserts a new video. ID is generated when unset.
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.TranscriptionStatus == "" {
		v.TranscriptionStatus = models.TranscriptionNotStarted
	}
	if v.ProcessingState == "" {
		v.ProcessingState = models.ProcessingUploaded
	}
	const q = `INSERT INTO videos (id, storage_key, original_filename, file_size, mime_type, transcription_status, processing_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, v.ID, v.StorageKey, v.OriginalFilename, v.FileSize, v.MimeType, v.TranscriptionStatus, v.ProcessingState).
		Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// GetByID returns a video by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	return scanVideo(r.pool.QueryRow(ctx, q, id))
}

// GetByTranscriptJobID returns the video a vendor job belongs to.
func (r *Repository) GetByTranscriptJobID(ctx context.Context, jobID string) (*models.Video, error) {
	if jobID == "" {
		return nil, models.ErrNotFound
	}
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE transcript_job_id = $1 LIMIT 1`
	return scanVideo(r.pool.QueryRow(ctx, q, jobID))
}

// List returns videos newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.Video, error) {
	limit, offset = normalizePage(limit, offset)
	const q = `SELECT ` + videoColumns + ` FROM videos ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// Delete removes a video row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateStorageKey points the record at a new canonical object.
func (r *Repository) UpdateStorageKey(ctx context.Context, id uuid.UUID, key string) error {
	const q = `UPDATE videos SET storage_key = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, key, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetProcessingState advances the pipeline state.
func (r *Repository) SetProcessingState(ctx context.Context, id uuid.UUID, to models.ProcessingState) error {
	const q = `UPDATE videos SET processing_state = $1, updated_at = NOW()
		WHERE id = $2 AND processing_state = ANY($3)`
	tag, err := r.pool.Exec(ctx, q, to, id, stateStrings(models.ProcessingSources(to)))
	if err != nil {
		return err
	}
	return r.guardResult(ctx, id, tag.RowsAffected())
}

// SetStreamURL sets stream_url once.
func (r *Repository) SetStreamURL(ctx context.Context, id uuid.UUID, url string) error {
	const q = `UPDATE videos SET stream_url = $1, updated_at = NOW() WHERE id = $2 AND stream_url IS NULL`
	tag, err := r.pool.Exec(ctx, q, url, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, id, tag.RowsAffected())
}

// TransitionTranscription compares and sets transcription_status.
func (r *Repository) TransitionTranscription(ctx context.Context, id uuid.UUID, from []models.TranscriptionStatus, to models.TranscriptionStatus) error {
	const q = `UPDATE videos SET transcription_status = $1, updated_at = NOW()
		WHERE id = $2 AND transcription_status = ANY($3)`
	tag, err := r.pool.Exec(ctx, q, to, id, statusStrings(from))
	if err != nil {
		return err
	}
	return r.guardResult(ctx, id, tag.RowsAffected())
}

// CompleteTranscription stores the transcript and marks it completed.
func (r *Repository) CompleteTranscription(ctx context.Context, id uuid.UUID, text string) error {
	const q = `UPDATE videos SET transcript = $1, transcription_status = $2, updated_at = NOW()
		WHERE id = $3 AND transcription_status = ANY($4)`
	tag, err := r.pool.Exec(ctx, q, text, models.TranscriptionCompleted, id, statusStrings(completableStatuses))
	if err != nil {
		return err
	}
	return r.guardResult(ctx, id, tag.RowsAffected())
}

// SetTranscriptJobID records the vendor job id.
func (r *Repository) SetTranscriptJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	const q = `UPDATE videos SET transcript_job_id = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, jobID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// guardResult tells a missing row apart from a failed precondition.
func (r *Repository) guardResult(ctx context.Context, id uuid.UUID, affected int64) error {
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM videos WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrInvalidState
}
