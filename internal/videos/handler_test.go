package videos_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/internal/transcription"
	"github.com/clipreview/backend/internal/videos"
	"github.com/clipreview/backend/pkg/storage"
)

// stubPipeline records calls and writes straight to the store.
type stubPipeline struct {
	store *videos.MemoryRepository

	mu        sync.Mutex
	ingested  []videos.Upload
	requested []uuid.UUID
	callbacks []transcription.Callback

	requestErr  error
	callbackErr error
}

func (p *stubPipeline) Ingest(ctx context.Context, up videos.Upload) (*models.Video, error) {
	if !storage.ValidateVideoFileType(up.ContentType, up.Filename) {
		return nil, fmt.Errorf("%w: unsupported file type", models.ErrValidation)
	}
	body, _ := io.ReadAll(up.Body)
	p.mu.Lock()
	up.Body = bytes.NewReader(body)
	p.ingested = append(p.ingested, up)
	p.mu.Unlock()

	v := &models.Video{ID: uuid.New(), StorageKey: "uploads/x", OriginalFilename: up.Filename, FileSize: up.Size, MimeType: up.ContentType}
	if err := p.store.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *stubPipeline) RequestTranscription(ctx context.Context, id uuid.UUID) error {
	p.mu.Lock()
	p.requested = append(p.requested, id)
	p.mu.Unlock()
	if p.requestErr != nil {
		return p.requestErr
	}
	return p.store.TransitionTranscription(ctx, id, []models.TranscriptionStatus{models.TranscriptionNotStarted, models.TranscriptionFailed}, models.TranscriptionPending)
}

func (p *stubPipeline) HandleCallback(_ context.Context, cb transcription.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
	return p.callbackErr
}

func (p *stubPipeline) Delete(ctx context.Context, id uuid.UUID) error {
	return p.store.Delete(ctx, id)
}

type apiFixture struct {
	router   *gin.Engine
	store    *videos.MemoryRepository
	storage  *storage.Local
	pipeline *stubPipeline
	signer   *transcription.CallbackSigner
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := videos.NewMemoryRepository()
	local, err := storage.NewLocal(t.TempDir(), "http://cdn.test/media", nil)
	require.NoError(t, err)
	pipeline := &stubPipeline{store: store}
	signer := transcription.NewCallbackSigner("webhook-secret", time.Hour)

	h := videos.NewHandler(store, pipeline, local, videos.HandlerConfig{MaxUploadBytes: 1 << 10}, nil)
	wh := videos.NewWebhookHandler(pipeline, signer, nil)

	r := gin.New()
	r.POST("/videos", h.Upload)
	r.GET("/videos", h.List)
	r.GET("/videos/:id", h.Get)
	r.DELETE("/videos/:id", h.Delete)
	r.POST("/videos/:id/transcription", h.RequestTranscription)
	r.GET("/videos/:id/stream/:file", h.Stream)
	r.GET("/media/*key", videos.ServeMedia(local))
	r.POST("/webhooks/transcription", wh.Transcription)

	return &apiFixture{router: r, store: store, storage: local, pipeline: pipeline, signer: signer}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) create(t *testing.T) *models.Video {
	t.Helper()
	v := &models.Video{ID: uuid.New(), StorageKey: "uploads/a/original.mp4", OriginalFilename: "a.mp4", FileSize: 10, MimeType: "video/mp4"}
	require.NoError(t, f.store.Create(context.Background(), v))
	return v
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func multipartUpload(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newAPI(t)
	w := f.do(multipartUpload(t, "clip.mp4", "video/mp4", []byte("0123456789")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got videos.VideoResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, "clip.mp4", got.OriginalFilename)
	assert.Equal(t, int64(10), got.FileSize)
	assert.Equal(t, models.TranscriptionNotStarted, got.TranscriptionStatus)
	assert.False(t, got.IsProcessing)

	require.Len(t, f.pipeline.ingested, 1)
	assert.Equal(t, "video/mp4", f.pipeline.ingested[0].ContentType)
}

func TestUploadRejects(t *testing.T) {
	f := newAPI(t)

	w := f.do(multipartUpload(t, "notes.txt", "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decode(t, w).Success)

	req := httptest.NewRequest(http.MethodPost, "/videos", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w = f.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(multipartUpload(t, "big.mp4", "video/mp4", bytes.Repeat([]byte("x"), 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, f.pipeline.ingested)
}

func TestGetAndList(t *testing.T) {
	f := newAPI(t)
	v := f.create(t)
	url := "http://x/videos/" + v.ID.String() + "/stream/playlist.m3u8"
	require.NoError(t, f.store.SetStreamURL(context.Background(), v.ID, url))

	w := f.do(httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, v.ID.String(), got["id"])
	assert.Equal(t, url, got["stream_url"])
	assert.Nil(t, got["transcript"])
	assert.Equal(t, true, got["is_processing"])

	f.create(t)
	w = f.do(httptest.NewRequest(http.MethodGet, "/videos?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []videos.VideoResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	assert.Len(t, list, 1)

	w = f.do(httptest.NewRequest(http.MethodGet, "/videos?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetErrors(t *testing.T) {
	f := newAPI(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/videos/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/videos/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "video not found", decode(t, w).Error)
}

func TestRequestTranscription(t *testing.T) {
	f := newAPI(t)
	v := f.create(t)

	w := f.do(httptest.NewRequest(http.MethodPost, "/videos/"+v.ID.String()+"/transcription", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var got videos.VideoResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, models.TranscriptionPending, got.TranscriptionStatus)

	w = f.do(httptest.NewRequest(http.MethodPost, "/videos/"+v.ID.String()+"/transcription", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(httptest.NewRequest(http.MethodPost, "/videos/"+uuid.NewString()+"/transcription", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.pipeline.requestErr = fmt.Errorf("schedule transcription: %w", assert.AnError)
	other := f.create(t)
	w = f.do(httptest.NewRequest(http.MethodPost, "/videos/"+other.ID.String()+"/transcription", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Error)
}

func TestDelete(t *testing.T) {
	f := newAPI(t)
	v := f.create(t)

	w := f.do(httptest.NewRequest(http.MethodDelete, "/videos/"+v.ID.String(), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(httptest.NewRequest(http.MethodDelete, "/videos/"+v.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStream(t *testing.T) {
	f := newAPI(t)
	v := f.create(t)
	id := v.ID.String()
	ctx := context.Background()

	w := f.do(httptest.NewRequest(http.MethodGet, "/videos/"+id+"/stream/playlist.m3u8", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "not packaged yet")

	playlist := "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10.0,\nsegment000.ts\n#EXTINF:4.0,\nsegment001.ts\n#EXT-X-ENDLIST\n"
	_, err := f.storage.Put(ctx, storage.HLSKey(id, storage.PlaylistName), strings.NewReader(playlist), "application/vnd.apple.mpegurl")
	require.NoError(t, err)
	_, err = f.storage.Put(ctx, storage.HLSKey(id, "segment000.ts"), strings.NewReader("ts0"), "video/mp2t")
	require.NoError(t, err)
	require.NoError(t, f.store.SetStreamURL(ctx, v.ID, videos.StreamURL("", v.ID)))

	w = f.do(httptest.NewRequest(http.MethodGet, "/videos/"+id+"/stream/playlist.m3u8", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "http://cdn.test/media/hls/"+id+"/segment000.ts\n")
	assert.Contains(t, body, "http://cdn.test/media/hls/"+id+"/segment001.ts\n")
	assert.Contains(t, body, "#EXT-X-ENDLIST")

	w = f.do(httptest.NewRequest(http.MethodGet, "/videos/"+id+"/stream/segment000.ts", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://cdn.test/media/hls/"+id+"/segment000.ts", w.Header().Get("Location"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/videos/"+id+"/stream/secrets.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeMedia(t *testing.T) {
	f := newAPI(t)
	_, err := f.storage.Put(context.Background(), "hls/abc/segment000.ts", strings.NewReader("ts-bytes"), "video/mp2t")
	require.NoError(t, err)

	w := f.do(httptest.NewRequest(http.MethodGet, "/media/hls/abc/segment000.ts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ts-bytes", w.Body.String())
	assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/media/hls/abc/missing.ts", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamURL(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.Equal(t, "/videos/0f8fad5b-d9cb-469f-a165-70867728950e/stream/playlist.m3u8", videos.StreamURL("", id))
	assert.Equal(t, "https://api.test/videos/0f8fad5b-d9cb-469f-a165-70867728950e/stream/playlist.m3u8", videos.StreamURL("https://api.test/", id))
}
