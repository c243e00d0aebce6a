package videos

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/internal/transcoder"
	"github.com/clipreview/backend/pkg/response"
	"github.com/clipreview/backend/pkg/storage"
)

// multipartOverhead is the slack allowed on top of the upload size limit for
// multipart framing before the body is cut off.
const multipartOverhead = 1 << 20

// HandlerConfig holds HTTP limits.
type HandlerConfig struct {
	MaxUploadBytes int64
	// URLExpiry is the lifetime of signed segment URLs.
	URLExpiry time.Duration
}

// Handler serves the video HTTP API.
type Handler struct {
	store    Store
	pipeline Pipeline
	storage  storage.Backend
	cfg      HandlerConfig
	logger   *zap.Logger
}

// NewHandler creates a videos handler.
func NewHandler(store Store, pipeline Pipeline, backend storage.Backend, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	return &Handler{store: store, pipeline: pipeline, storage: backend, cfg: cfg, logger: logger}
}

// VideoResponse is a video record plus derived status.
type VideoResponse struct {
	*models.Video
	IsProcessing bool `json:"is_processing"`
}

func toResponse(v *models.Video) VideoResponse {
	return VideoResponse{Video: v, IsProcessing: v.IsProcessing()}
}

// Upload handles POST /videos (multipart field "file").
func (h *Handler) Upload(c *gin.Context) {
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+multipartOverhead)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c, "file too large")
			return
		}
		response.BadRequest(c, "file required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		response.Internal(c, "failed to read upload")
		return
	}
	defer f.Close()

	v, err := h.pipeline.Ingest(c.Request.Context(), Upload{
		Filename:    path.Base(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		h.fail(c, "upload video", err)
		return
	}
	response.Created(c, toResponse(v))
}

// List handles GET /videos?limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		response.BadRequest(c, "invalid offset")
		return
	}
	list, err := h.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, "list videos", err)
		return
	}
	out := make([]VideoResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	response.OK(c, out)
}

func queryInt(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

// Get handles GET /videos/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	v, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get video", err)
		return
	}
	response.OK(c, toResponse(v))
}

// RequestTranscription handles POST /videos/:id/transcription.
func (h *Handler) RequestTranscription(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	if err := h.pipeline.RequestTranscription(c.Request.Context(), id); err != nil {
		h.fail(c, "request transcription", err)
		return
	}
	v, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get video", err)
		return
	}
	response.Accepted(c, toResponse(v))
}

// Delete handles DELETE /videos/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	if err := h.pipeline.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "delete video", err)
		return
	}
	response.NoContent(c)
}

// Stream handles GET /videos/:id/stream/:file. The playlist is served with
// segment URIs resolved against the storage backend; segments redirect.
func (h *Handler) Stream(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	file := c.Param("file")
	if file != storage.PlaylistName && (path.Ext(file) != ".ts" || strings.ContainsAny(file, `/\`)) {
		response.NotFound(c, "stream file not found")
		return
	}
	v, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get video", err)
		return
	}
	if !v.StreamReady() {
		response.NotFound(c, "stream not ready")
		return
	}

	ctx := c.Request.Context()
	if file != storage.PlaylistName {
		u, err := h.storage.URLFor(ctx, storage.HLSKey(id.String(), file), h.cfg.URLExpiry)
		if err != nil {
			h.fail(c, "resolve segment url", err)
			return
		}
		c.Redirect(http.StatusFound, u)
		return
	}

	rc, err := h.storage.Get(ctx, storage.HLSKey(id.String(), storage.PlaylistName))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(c, "stream file not found")
			return
		}
		h.fail(c, "open playlist", err)
		return
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		h.fail(c, "read playlist", err)
		return
	}
	body, err := transcoder.RewriteURIs(raw, func(uri string) (string, error) {
		return h.storage.URLFor(ctx, storage.HLSKey(id.String(), path.Base(uri)), h.cfg.URLExpiry)
	})
	if err != nil {
		h.fail(c, "rewrite playlist", err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", body)
}

// ServeMedia handles GET /media/*key for the local storage backend.
func ServeMedia(local *storage.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		p, err := local.Path(key)
		if err != nil || key == "" {
			response.NotFound(c, "object not found")
			return
		}
		if ct := storage.ContentTypeForFilename(key); ct != "application/octet-stream" {
			c.Header("Content-Type", ct)
		}
		c.File(p)
	}
}

func videoID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return uuid.Nil, false
	}
	return id, true
}

// fail logs unexpected errors and writes the mapped response.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	if !errors.Is(err, models.ErrValidation) && !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrInvalidState) {
		h.logger.Error(op+" failed", zap.String("video_id", c.Param("id")), zap.Error(err))
	}
	response.Error(c, err)
}
