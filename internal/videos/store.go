// Package videos persists video records and serves the video HTTP surface.
package videos

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipreview/backend/internal/models"
)

// Store persists video records. Unknown ids yield models.ErrNotFound and
// failed preconditions yield models.ErrInvalidState; neither mutates state.
type Store interface {
	Create(ctx context.Context, v *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	GetByTranscriptJobID(ctx context.Context, jobID string) (*models.Video, error)
	List(ctx context.Context, limit, offset int) ([]models.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error

	UpdateStorageKey(ctx context.Context, id uuid.UUID, key string) error
	// SetProcessingState moves the pipeline state forward when the
	// transition is allowed from the current state.
	SetProcessingState(ctx context.Context, id uuid.UUID, to models.ProcessingState) error
	// SetStreamURL sets the stream URL only if none is set yet.
	SetStreamURL(ctx context.Context, id uuid.UUID, url string) error
	// TransitionTranscription is a single compare-and-set: the status
	// becomes to only if it is currently one of from.
	TransitionTranscription(ctx context.Context, id uuid.UUID, from []models.TranscriptionStatus, to models.TranscriptionStatus) error
	// CompleteTranscription writes the transcript and completed status
	// together, only from pending or in_progress.
	CompleteTranscription(ctx context.Context, id uuid.UUID, text string) error
	SetTranscriptJobID(ctx context.Context, id uuid.UUID, jobID string) error
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var completableStatuses = []models.TranscriptionStatus{models.TranscriptionPending, models.TranscriptionInProgress}

func statusStrings(in []models.TranscriptionStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func stateStrings(in []models.ProcessingState) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// createClock hands out strictly increasing creation times so newest-first
// ordering is stable within one process.
type createClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *createClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
