package videos

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/pkg/database"
)

func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()
	db, err := database.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "videos.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"memory": NewMemoryRepository(),
		"sqlite": NewSQLiteRepository(db),
	}
}

func newVideo() *models.Video {
	return &models.Video{
		StorageKey:       "uploads/x/original.mp4",
		OriginalFilename: "clip.mp4",
		FileSize:         1024,
		MimeType:         "video/mp4",
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range storeImplementations(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := newVideo()
		require.NoError(t, s.Create(ctx, v))
		assert.NotEqual(t, uuid.Nil, v.ID)

		got, err := s.GetByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "clip.mp4", got.OriginalFilename)
		assert.Equal(t, int64(1024), got.FileSize)
		assert.Equal(t, models.TranscriptionNotStarted, got.TranscriptionStatus)
		assert.Equal(t, models.ProcessingUploaded, got.ProcessingState)
		assert.Nil(t, got.StreamURL)
		assert.Nil(t, got.Transcript)
		assert.False(t, got.CreatedAt.IsZero())

		_, err = s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStoreListNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			v := newVideo()
			require.NoError(t, s.Create(ctx, v))
			ids = append(ids, v.ID)
		}
		list, err := s.List(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, ids[2], list[0].ID)

		page, err := s.List(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, ids[0], page[0].ID)
	})
}

func TestStoreStreamURLSetOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := newVideo()
		require.NoError(t, s.Create(ctx, v))

		require.NoError(t, s.SetStreamURL(ctx, v.ID, "/videos/a/stream/playlist.m3u8"))
		assert.ErrorIs(t, s.SetStreamURL(ctx, v.ID, "/other"), models.ErrInvalidState)
		assert.ErrorIs(t, s.SetStreamURL(ctx, uuid.New(), "/x"), models.ErrNotFound)

		got, err := s.GetByID(ctx, v.ID)
		require.NoError(t, err)
		require.NotNil(t, got.StreamURL)
		assert.Equal(t, "/videos/a/stream/playlist.m3u8", *got.StreamURL)
	})
}

func TestStoreProcessingState(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := newVideo()
		require.NoError(t, s.Create(ctx, v))

		assert.ErrorIs(t, s.SetProcessingState(ctx, v.ID, models.ProcessingReady), models.ErrInvalidState)
		require.NoError(t, s.SetProcessingState(ctx, v.ID, models.ProcessingStandardizing))
		require.NoError(t, s.SetProcessingState(ctx, v.ID, models.ProcessingStandardizing), "stage re-run")
		require.NoError(t, s.SetProcessingState(ctx, v.ID, models.ProcessingPackaging))
		require.NoError(t, s.SetProcessingState(ctx, v.ID, models.ProcessingReady))
		assert.ErrorIs(t, s.SetProcessingState(ctx, v.ID, models.ProcessingStandardizing), models.ErrInvalidState)

		got, err := s.GetByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessingReady, got.ProcessingState)
	})
}

func TestStoreTranscriptionLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := newVideo()
		require.NoError(t, s.Create(ctx, v))

		requestable := []models.TranscriptionStatus{models.TranscriptionNotStarted, models.TranscriptionFailed}
		require.NoError(t, s.TransitionTranscription(ctx, v.ID, requestable, models.TranscriptionPending))
		assert.ErrorIs(t, s.TransitionTranscription(ctx, v.ID, requestable, models.TranscriptionPending), models.ErrInvalidState)
		require.NoError(t, s.TransitionTranscription(ctx, v.ID, []models.TranscriptionStatus{models.TranscriptionPending}, models.TranscriptionInProgress))
		require.NoError(t, s.SetTranscriptJobID(ctx, v.ID, "tr_123"))
		require.NoError(t, s.CompleteTranscription(ctx, v.ID, "hello"))

		got, err := s.GetByTranscriptJobID(ctx, "tr_123")
		require.NoError(t, err)
		assert.Equal(t, v.ID, got.ID)
		assert.Equal(t, models.TranscriptionCompleted, got.TranscriptionStatus)
		require.NotNil(t, got.Transcript)
		assert.Equal(t, "hello", *got.Transcript)

		// completed is terminal.
		assert.ErrorIs(t, s.CompleteTranscription(ctx, v.ID, "again"), models.ErrInvalidState)
		assert.ErrorIs(t, s.TransitionTranscription(ctx, v.ID, requestable, models.TranscriptionPending), models.ErrInvalidState)

		_, err = s.GetByTranscriptJobID(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStoreConcurrentTransitionHasOneWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := newVideo()
		require.NoError(t, s.Create(ctx, v))

		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.TransitionTranscription(ctx, v.ID,
					[]models.TranscriptionStatus{models.TranscriptionNotStarted, models.TranscriptionFailed},
					models.TranscriptionPending)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestStoreUpdateAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := newVideo()
		require.NoError(t, s.Create(ctx, v))

		require.NoError(t, s.UpdateStorageKey(ctx, v.ID, "videos/x/standardized.mp4"))
		got, err := s.GetByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "videos/x/standardized.mp4", got.StorageKey)

		require.NoError(t, s.Delete(ctx, v.ID))
		_, err = s.GetByID(ctx, v.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, v.ID), models.ErrNotFound)
		assert.ErrorIs(t, s.UpdateStorageKey(ctx, v.ID, "k"), models.ErrNotFound)
	})
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	s := NewMemoryRepository()
	ctx := context.Background()
	v := newVideo()
	require.NoError(t, s.Create(ctx, v))
	require.NoError(t, s.SetStreamURL(ctx, v.ID, "/a"))

	got, err := s.GetByID(ctx, v.ID)
	require.NoError(t, err)
	*got.StreamURL = "/mutated"
	got.OriginalFilename = "changed"

	again, err := s.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "/a", *again.StreamURL)
	assert.Equal(t, "clip.mp4", again.OriginalFilename)
}
