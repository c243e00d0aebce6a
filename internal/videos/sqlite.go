package videos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipreview/backend/internal/models"
)

// SQLiteRepository is the Store for single-node deployments.
type SQLiteRepository struct {
	db    *sql.DB
	clock createClock
}

// NewSQLiteRepository creates a repository over an opened and migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteVideo(row rowScanner) (*models.Video, error) {
	var (
		v                models.Video
		streamURL, text  sql.NullString
		created, updated int64
	)
	err := row.Scan(&v.ID, &v.StorageKey, &v.OriginalFilename, &v.FileSize, &v.MimeType, &streamURL, &text,
		&v.TranscriptionStatus, &v.TranscriptJobID, &v.ProcessingState, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if streamURL.Valid {
		v.StreamURL = &streamURL.String
	}
	if text.Valid {
		v.Transcript = &text.String
	}
	v.CreatedAt = time.Unix(0, created).UTC()
	v.UpdatedAt = time.Unix(0, updated).UTC()
	return &v, nil
}

func nowNanos() int64 { return time.Now().UTC().UnixNano() }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Create inserts a new video. ID is generated when unset.
func (r *SQLiteRepository) Create(ctx context.Context, v *models.Video) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.TranscriptionStatus == "" {
		v.TranscriptionStatus = models.TranscriptionNotStarted
	}
	if v.ProcessingState == "" {
		v.ProcessingState = models.ProcessingUploaded
	}
	now := r.clock.now().UnixNano()
	const q = `INSERT INTO videos (id, storage_key, original_filename, file_size, mime_type, transcription_status, processing_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, v.ID.String(), v.StorageKey, v.OriginalFilename, v.FileSize, v.MimeType,
		string(v.TranscriptionStatus), string(v.ProcessingState), now, now)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	v.CreatedAt = time.Unix(0, now).UTC()
	v.UpdatedAt = v.CreatedAt
	return nil
}

// GetByID returns a video by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE id = ?`
	return scanSQLiteVideo(r.db.QueryRowContext(ctx, q, id.String()))
}

// GetByTranscriptJobID returns the video a vendor job belongs to.
func (r *SQLiteRepository) GetByTranscriptJobID(ctx context.Context, jobID string) (*models.Video, error) {
	if jobID == "" {
		return nil, models.ErrNotFound
	}
	q := `SELECT ` + videoColumns + ` FROM videos WHERE transcript_job_id = ? LIMIT 1`
	return scanSQLiteVideo(r.db.QueryRowContext(ctx, q, jobID))
}

// List returns videos newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit, offset int) ([]models.Video, error) {
	limit, offset = normalizePage(limit, offset)
	q := `SELECT ` + videoColumns + ` FROM videos ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Video{}
	for rows.Next() {
		v, err := scanSQLiteVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// Delete removes a video row.
func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return r.mustAffect(res)
}

// UpdateStorageKey points the record at a new canonical object.
func (r *SQLiteRepository) UpdateStorageKey(ctx context.Context, id uuid.UUID, key string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE videos SET storage_key = ?, updated_at = ? WHERE id = ?`, key, nowNanos(), id.String())
	if err != nil {
		return err
	}
	return r.mustAffect(res)
}

// SetProcessingState advances the pipeline state.
func (r *SQLiteRepository) SetProcessingState(ctx context.Context, id uuid.UUID, to models.ProcessingState) error {
	from := stateStrings(models.ProcessingSources(to))
	if len(from) == 0 {
		return r.guardResult(ctx, id, 0)
	}
	q := `UPDATE videos SET processing_state = ?, updated_at = ? WHERE id = ? AND processing_state IN (` + placeholders(len(from)) + `)`
	args := []interface{}{string(to), nowNanos(), id.String()}
	for _, s := range from {
		args = append(args, s)
	}
	return r.execGuarded(ctx, id, q, args...)
}

// SetStreamURL sets stream_url once.
func (r *SQLiteRepository) SetStreamURL(ctx context.Context, id uuid.UUID, url string) error {
	const q = `UPDATE videos SET stream_url = ?, updated_at = ? WHERE id = ? AND stream_url IS NULL`
	return r.execGuarded(ctx, id, q, url, nowNanos(), id.String())
}

// TransitionTranscription compares and sets transcription_status.
func (r *SQLiteRepository) TransitionTranscription(ctx context.Context, id uuid.UUID, from []models.TranscriptionStatus, to models.TranscriptionStatus) error {
	if len(from) == 0 {
		return r.guardResult(ctx, id, 0)
	}
	q := `UPDATE videos SET transcription_status = ?, updated_at = ? WHERE id = ? AND transcription_status IN (` + placeholders(len(from)) + `)`
	args := []interface{}{string(to), nowNanos(), id.String()}
	for _, s := range statusStrings(from) {
		args = append(args, s)
	}
	return r.execGuarded(ctx, id, q, args...)
}

// CompleteTranscription stores the transcript and marks it completed.
func (r *SQLiteRepository) CompleteTranscription(ctx context.Context, id uuid.UUID, text string) error {
	const q = `UPDATE videos SET transcript = ?, transcription_status = ?, updated_at = ?
		WHERE id = ? AND transcription_status IN (?, ?)`
	return r.execGuarded(ctx, id, q, text, string(models.TranscriptionCompleted), nowNanos(), id.String(),
		string(models.TranscriptionPending), string(models.TranscriptionInProgress))
}

// SetTranscriptJobID records the vendor job id.
func (r *SQLiteRepository) SetTranscriptJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE videos SET transcript_job_id = ?, updated_at = ? WHERE id = ?`, jobID, nowNanos(), id.String())
	if err != nil {
		return err
	}
	return r.mustAffect(res)
}

func (r *SQLiteRepository) execGuarded(ctx context.Context, id uuid.UUID, q string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	return r.guardResult(ctx, id, n)
}

func (r *SQLiteRepository) mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) guardResult(ctx context.Context, id uuid.UUID, affected int64) error {
	if affected > 0 {
		return nil
	}
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE id = ?`, id.String()).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return models.ErrNotFound
	}
	return models.ErrInvalidState
}
