package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipreview/backend/internal/models"
)

// Event types pushed to status subscribers.
const (
	EventSnapshot            = "snapshot"
	EventProcessingState     = "processing_state"
	EventStreamReady         = "stream_ready"
	EventTranscriptionStatus = "transcription_status"
	EventDeleted             = "deleted"
)

// Event is a change to one video. Video is the record after the change and
// is nil for deletions.
type Event struct {
	Type    string        `json:"type"`
	VideoID uuid.UUID     `json:"video_id"`
	Video   *models.Video `json:"video,omitempty"`
	At      time.Time     `json:"at"`
}

// Notifier delivers events on a best-effort basis.
type Notifier interface {
	Publish(ctx context.Context, e Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }
