package videos

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipreview/backend/internal/models"
)

// MemoryRepository is an in-process Store. Reads return copies.
type MemoryRepository struct {
	mu     sync.Mutex
	videos map[uuid.UUID]*models.Video
	clock  createClock
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{videos: make(map[uuid.UUID]*models.Video)}
}

func cloneVideo(v *models.Video) *models.Video {
	c := *v
	if v.StreamURL != nil {
		s := *v.StreamURL
		c.StreamURL = &s
	}
	if v.Transcript != nil {
		s := *v.Transcript
		c.Transcript = &s
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if _, ok := r.videos[v.ID]; ok {
		return models.ErrInvalidState
	}
	if v.TranscriptionStatus == "" {
		v.TranscriptionStatus = models.TranscriptionNotStarted
	}
	if v.ProcessingState == "" {
		v.ProcessingState = models.ProcessingUploaded
	}
	now := r.clock.now()
	v.CreatedAt, v.UpdatedAt = now, now
	r.videos[v.ID] = cloneVideo(v)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneVideo(v), nil
}

func (r *MemoryRepository) GetByTranscriptJobID(_ context.Context, jobID string) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if jobID == "" {
		return nil, models.ErrNotFound
	}
	for _, v := range r.videos {
		if v.TranscriptJobID == jobID {
			return cloneVideo(v), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryRepository) List(_ context.Context, limit, offset int) ([]models.Video, error) {
	limit, offset = normalizePage(limit, offset)
	r.mu.Lock()
	all := make([]models.Video, 0, len(r.videos))
	for _, v := range r.videos {
		all = append(all, *cloneVideo(v))
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	if offset >= len(all) {
		return []models.Video{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.videos, id)
	return nil
}

// update runs fn on the stored record under the lock. fn returns false when
// its precondition does not hold.
func (r *MemoryRepository) update(id uuid.UUID, fn func(v *models.Video) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return models.ErrNotFound
	}
	if !fn(v) {
		return models.ErrInvalidState
	}
	v.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) UpdateStorageKey(_ context.Context, id uuid.UUID, key string) error {
	return r.update(id, func(v *models.Video) bool {
		v.StorageKey = key
		return true
	})
}

func (r *MemoryRepository) SetProcessingState(_ context.Context, id uuid.UUID, to models.ProcessingState) error {
	return r.update(id, func(v *models.Video) bool {
		if !models.CanProcessingTransition(v.ProcessingState, to) {
			return false
		}
		v.ProcessingState = to
		return true
	})
}

func (r *MemoryRepository) SetStreamURL(_ context.Context, id uuid.UUID, url string) error {
	return r.update(id, func(v *models.Video) bool {
		if v.StreamURL != nil {
			return false
		}
		v.StreamURL = &url
		return true
	})
}

func (r *MemoryRepository) TransitionTranscription(_ context.Context, id uuid.UUID, from []models.TranscriptionStatus, to models.TranscriptionStatus) error {
	return r.update(id, func(v *models.Video) bool {
		for _, s := range from {
			if v.TranscriptionStatus == s {
				v.TranscriptionStatus = to
				return true
			}
		}
		return false
	})
}

func (r *MemoryRepository) CompleteTranscription(_ context.Context, id uuid.UUID, text string) error {
	return r.update(id, func(v *models.Video) bool {
		if v.TranscriptionStatus != models.TranscriptionPending && v.TranscriptionStatus != models.TranscriptionInProgress {
			return false
		}
		v.Transcript = &text
		v.TranscriptionStatus = models.TranscriptionCompleted
		return true
	})
}

func (r *MemoryRepository) SetTranscriptJobID(_ context.Context, id uuid.UUID, jobID string) error {
	return r.update(id, func(v *models.Video) bool {
		v.TranscriptJobID = jobID
		return true
	})
}
