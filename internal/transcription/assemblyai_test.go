package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVendor struct {
	t            *testing.T
	polls        atomic.Int32
	readyAt      int32
	final        transcriptResponse
	createStatus int

	mu       sync.Mutex
	lastBody transcriptRequest
}

func (v *fakeVendor) body() transcriptRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastBody
}

func (v *fakeVendor) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(v.t, http.MethodPost, r.Method)
		assert.Equal(v.t, "test-key", r.Header.Get("Authorization"))
		var body transcriptRequest
		assert.NoError(v.t, json.NewDecoder(r.Body).Decode(&body))
		v.mu.Lock()
		v.lastBody = body
		v.mu.Unlock()
		if v.createStatus != 0 {
			w.WriteHeader(v.createStatus)
			_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(transcriptResponse{ID: "tr_1", Status: "queued"})
	})
	mux.HandleFunc("/v2/transcript/tr_1", func(w http.ResponseWriter, r *http.Request) {
		n := v.polls.Add(1)
		if n < v.readyAt {
			_ = json.NewEncoder(w).Encode(transcriptResponse{ID: "tr_1", Status: "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(v.final)
	})
	return mux
}

func newTestClient(t *testing.T, srvURL string, mode Mode) *AssemblyAI {
	t.Helper()
	cfg := AssemblyAIConfig{
		APIKey:       "test-key",
		BaseURL:      srvURL,
		Mode:         mode,
		PollInterval: 5 * time.Millisecond,
	}
	var signer *CallbackSigner
	if mode == ModeWebhook {
		cfg.WebhookURL = "https://review.example.com/webhooks/transcription"
		signer = NewCallbackSigner("hook-secret", time.Hour)
	}
	c, err := NewAssemblyAI(cfg, signer, nil)
	require.NoError(t, err)
	return c
}

func TestAssemblyAIPollCompletes(t *testing.T) {
	v := &fakeVendor{t: t, readyAt: 3, final: transcriptResponse{ID: "tr_1", Status: "completed", Text: "hello world"}}
	srv := httptest.NewServer(v.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL, ModePoll)
	out, err := c.Submit(context.Background(), "https://media.example/v.mp4", "vid-1")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Text: "hello world", JobID: "tr_1"}, out)
	assert.Equal(t, "https://media.example/v.mp4", v.body().AudioURL)
	assert.True(t, v.body().Punctuate)
	assert.True(t, v.body().FormatText)
	assert.Empty(t, v.body().WebhookURL)
	assert.GreaterOrEqual(t, v.polls.Load(), int32(3))
}

func TestAssemblyAIPollVendorError(t *testing.T) {
	v := &fakeVendor{t: t, readyAt: 1, final: transcriptResponse{ID: "tr_1", Status: "error", Error: "audio has no speech"}}
	srv := httptest.NewServer(v.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, ModePoll).Submit(context.Background(), "https://media.example/v.mp4", "vid-1")
	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "audio has no speech", te.Detail)
	assert.Equal(t, "tr_1", te.JobID)
}

func TestAssemblyAIPollTimeout(t *testing.T) {
	v := &fakeVendor{t: t, readyAt: 1 << 30}
	srv := httptest.NewServer(v.handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv.URL, ModePoll).Submit(ctx, "https://media.example/v.mp4", "vid-1")
	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
}

func TestAssemblyAIWebhookMode(t *testing.T) {
	v := &fakeVendor{t: t}
	srv := httptest.NewServer(v.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL, ModeWebhook)
	out, err := c.Submit(context.Background(), "https://media.example/v.mp4", "vid-42")
	require.NoError(t, err)
	assert.Equal(t, Outcome{JobID: "tr_1", Async: true}, out)
	assert.Zero(t, v.polls.Load())

	hook, err := url.Parse(v.body().WebhookURL)
	require.NoError(t, err)
	assert.Equal(t, "/webhooks/transcription", hook.Path)
	id, err := c.signer.Verify(hook.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "vid-42", id)
}

func TestAssemblyAISubmitRejected(t *testing.T) {
	v := &fakeVendor{t: t, createStatus: http.StatusUnauthorized}
	srv := httptest.NewServer(v.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, ModePoll).Submit(context.Background(), "https://media.example/v.mp4", "vid-1")
	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Equal(t, "Invalid API key", te.Detail)
}

func TestAssemblyAIFetch(t *testing.T) {
	v := &fakeVendor{t: t, readyAt: 1, final: transcriptResponse{ID: "tr_1", Status: "completed", Text: "fetched"}}
	srv := httptest.NewServer(v.handler())
	defer srv.Close()

	text, err := newTestClient(t, srv.URL, ModeWebhook).Fetch(context.Background(), "tr_1")
	require.NoError(t, err)
	assert.Equal(t, "fetched", text)
}

func TestNewAssemblyAIValidation(t *testing.T) {
	_, err := NewAssemblyAI(AssemblyAIConfig{}, nil, nil)
	assert.Error(t, err)
	_, err = NewAssemblyAI(AssemblyAIConfig{APIKey: "k", Mode: "carrier-pigeon"}, nil, nil)
	assert.Error(t, err)
	_, err = NewAssemblyAI(AssemblyAIConfig{APIKey: "k", Mode: ModeWebhook}, nil, nil)
	assert.Error(t, err)

	c, err := NewAssemblyAI(AssemblyAIConfig{APIKey: "k"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ModePoll, c.Mode())
}

func TestTranscriptionErrorMessage(t *testing.T) {
	err := &TranscriptionError{JobID: "tr_9", StatusCode: 500, Detail: "boom"}
	assert.Equal(t, "transcription failed (job tr_9): status 500: boom", err.Error())
}
