package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAssemblyAIBaseURL = "https://api.assemblyai.com"

// AssemblyAIConfig configures the AssemblyAI client.
type AssemblyAIConfig struct {
	APIKey  string
	BaseURL string
	Mode    Mode
	// WebhookURL is the public address of POST /webhooks/transcription.
	WebhookURL   string
	PollInterval time.Duration
	// HTTPTimeout bounds a single API request, not the whole job.
	HTTPTimeout time.Duration
}

// AssemblyAI talks to the AssemblyAI v2 transcript API.
type AssemblyAI struct {
	cfg    AssemblyAIConfig
	http   *http.Client
	signer *CallbackSigner
	logger *zap.Logger
}

// NewAssemblyAI creates a client. signer is required in webhook mode.
func NewAssemblyAI(cfg AssemblyAIConfig, signer *CallbackSigner, logger *zap.Logger) (*AssemblyAI, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, errors.New("assemblyai: api key required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePoll
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("assemblyai: unknown mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeWebhook && (cfg.WebhookURL == "" || signer == nil) {
		return nil, errors.New("assemblyai: webhook mode needs a webhook url and signer")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAssemblyAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &AssemblyAI{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		signer: signer,
		logger: logger,
	}, nil
}

// Mode returns the configured completion mode.
func (a *AssemblyAI) Mode() Mode { return a.cfg.Mode }

type transcriptRequest struct {
	AudioURL   string `json:"audio_url"`
	Punctuate  bool   `json:"punctuate"`
	FormatText bool   `json:"format_text"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Submit creates a transcript job. In poll mode it waits for the job to
// finish; in webhook mode it returns as soon as the job is accepted.
func (a *AssemblyAI) Submit(ctx context.Context, mediaURL, correlationID string) (Outcome, error) {
	req := transcriptRequest{AudioURL: mediaURL, Punctuate: true, FormatText: true}
	if a.cfg.Mode == ModeWebhook {
		hook, err := a.webhookURL(correlationID)
		if err != nil {
			return Outcome{}, err
		}
		req.WebhookURL = hook
	}

	var created transcriptResponse
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", req, &created); err != nil {
		return Outcome{}, err
	}
	if created.ID == "" {
		return Outcome{}, &TranscriptionError{Detail: "vendor returned no transcript id"}
	}
	a.logger.Info("transcript submitted",
		zap.String("job_id", created.ID),
		zap.String("video_id", correlationID),
		zap.String("mode", string(a.cfg.Mode)),
	)
	if a.cfg.Mode == ModeWebhook {
		return Outcome{JobID: created.ID, Async: true}, nil
	}

	text, err := a.poll(ctx, created.ID)
	if err != nil {
		return Outcome{JobID: created.ID}, err
	}
	return Outcome{Text: text, JobID: created.ID}, nil
}

// Fetch returns the text of a completed job.
func (a *AssemblyAI) Fetch(ctx context.Context, jobID string) (string, error) {
	t, err := a.get(ctx, jobID)
	if err != nil {
		return "", err
	}
	switch t.Status {
	case StatusCompleted:
		return t.Text, nil
	case StatusError:
		return "", &TranscriptionError{JobID: jobID, Detail: t.Error}
	default:
		return "", &TranscriptionError{JobID: jobID, Detail: "transcript not finished: " + t.Status}
	}
}

func (a *AssemblyAI) poll(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", &TranscriptionError{JobID: jobID, Detail: "gave up waiting for transcript", Err: ctx.Err()}
		case <-ticker.C:
		}
		t, err := a.get(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch t.Status {
		case StatusCompleted:
			return t.Text, nil
		case StatusError:
			return "", &TranscriptionError{JobID: jobID, Detail: t.Error}
		}
		a.logger.Debug("transcript pending", zap.String("job_id", jobID), zap.String("status", t.Status))
	}
}

func (a *AssemblyAI) get(ctx context.Context, jobID string) (*transcriptResponse, error) {
	var t transcriptResponse
	if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(jobID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *AssemblyAI) webhookURL(correlationID string) (string, error) {
	token, err := a.signer.Sign(correlationID)
	if err != nil {
		return "", fmt.Errorf("sign callback token: %w", err)
	}
	u, err := url.Parse(a.cfg.WebhookURL)
	if err != nil {
		return "", fmt.Errorf("parse webhook url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *AssemblyAI) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &TranscriptionError{Detail: method + " " + path, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TranscriptionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			detail = apiErr.Error
		}
		return &TranscriptionError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TranscriptionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
