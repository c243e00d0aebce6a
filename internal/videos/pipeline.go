package videos

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/internal/transcription"
	"github.com/clipreview/backend/pkg/storage"
)

// Upload is an incoming media file as received over HTTP.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Pipeline is the background side of the video API.
type Pipeline interface {
	Ingest(ctx context.Context, up Upload) (*models.Video, error)
	RequestTranscription(ctx context.Context, id uuid.UUID) error
	HandleCallback(ctx context.Context, cb transcription.Callback) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// StreamURL is the playback URL of a packaged video. An empty base yields a
// root-relative URL.
func StreamURL(base string, id uuid.UUID) string {
	return strings.TrimRight(base, "/") + "/videos/" + id.String() + "/stream/" + storage.PlaylistName
}
